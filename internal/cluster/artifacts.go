package cluster

import (
	"fmt"

	"photokeep/internal/apierrors"
	"photokeep/internal/artifacts"
)

func readFaceVector(path string) ([]float64, error) {
	raw, err := artifacts.Read(path)
	if err != nil {
		return nil, apierrors.Wrap(apierrors.KindTransientIO, "read face embedding artifact", err)
	}
	v, err := artifacts.DecodeVector(raw)
	if err != nil {
		return nil, apierrors.Wrap(apierrors.KindPermanentDecode, fmt.Sprintf("decode face embedding at %s", path), err)
	}
	return v, nil
}
