package httpapi

import (
	"errors"

	"photokeep/internal/apierrors"
	"photokeep/internal/store"
)

// classifyStoreErr maps a bare store.ErrNotFound into the apierrors
// taxonomy with a route-specific message, and passes any already-classified
// apierrors.Error (or anything else) through unchanged so SendError can
// classify it itself.
func classifyStoreErr(err error, notFoundMsg string) error {
	if errors.Is(err, store.ErrNotFound) {
		return apierrors.Wrap(apierrors.KindNotFound, notFoundMsg, err)
	}
	return err
}
