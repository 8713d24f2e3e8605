package httpapi

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"photokeep/internal/apierrors"
	"photokeep/internal/store"
	"photokeep/internal/utils"
)

func (h *handlers) listTasks(c *gin.Context) {
	var state *store.TaskState
	if raw := c.Query("state"); raw != "" {
		s := store.TaskState(raw)
		state = &s
	}
	var taskType *store.TaskType
	if raw := c.Query("type"); raw != "" {
		t := store.TaskType(raw)
		taskType = &t
	}
	page, pageSize := utils.GetPagination(c)
	offset := utils.GetOffset(page, pageSize)

	tasksPage, total, err := h.d.TasksDB.ListTasks(c.Request.Context(), state, taskType, pageSize, offset)
	if err != nil {
		utils.SendError(c, err)
		return
	}
	utils.SendPaginated(c, tasksPage, page, pageSize, total)
}

func (h *handlers) cancelTask(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.SendError(c, apierrors.New(apierrors.KindValidation, "invalid task id"))
		return
	}
	if err := h.d.TasksDB.CancelTask(c.Request.Context(), id); err != nil {
		utils.SendError(c, classifyStoreErr(err, "task not found"))
		return
	}
	utils.SendOK(c, gin.H{"id": id, "cancel_requested": true})
}

func (h *handlers) requeueTask(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.SendError(c, apierrors.New(apierrors.KindValidation, "invalid task id"))
		return
	}
	if err := h.d.TasksDB.Requeue(c.Request.Context(), id); err != nil {
		utils.SendError(c, classifyStoreErr(err, "task not found or not dead-lettered"))
		return
	}
	utils.SendOK(c, gin.H{"id": id, "state": store.TaskPending})
}
