package main

import (
	"net/http"
	"strconv"

	"bitbucket.org/mmdatafocus/budget_backend/models"
	"bitbucket.org/mmdatafocus/budget_backend/utils"
	"bitbucket.org/mmdatafocus/budget_backend/workflow"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

// writeError maps a domain error onto the HTTP status for its kind. Unknown
// errors come back as 500 without leaking internals.
func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch utils.KindOf(err) {
	case utils.ErrorKindValidation:
		status = http.StatusBadRequest
	case utils.ErrorKindNotFound:
		status = http.StatusNotFound
	case utils.ErrorKindStateConflict, utils.ErrorKindDuplicate, utils.ErrorKindImmutable:
		status = http.StatusConflict
	}
	if status == http.StatusInternalServerError {
		c.JSON(status, gin.H{"error": "internal server error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error(), "kind": utils.KindOf(err)})
}

func bindJSON(c *gin.Context, dest interface{}) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		if _, ok := err.(validator.ValidationErrors); ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "validation failed", "fields": utils.ProcessValidationErrors(err)})
			return false
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return false
	}
	return true
}

func pathId(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return id, true
}

func queryInt(c *gin.Context, name string) *int {
	raw := c.Query(name)
	if raw == "" {
		return nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return nil
	}
	return &v
}

func actorFromContext(c *gin.Context) (workflow.Actor, bool) {
	ctx := c.Request.Context()
	id, ok := utils.GetUserIdFromContext(ctx)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return workflow.Actor{}, false
	}
	name, _ := utils.GetUserNameFromContext(ctx)
	roleValue, _ := utils.GetUserRoleFromContext(ctx)
	isAdmin, _ := utils.GetIsAdminFromContext(ctx)
	role, err := models.ParseUserRole(roleValue)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return workflow.Actor{}, false
	}
	return workflow.Actor{ID: id, Name: name, Role: role, IsAdmin: isAdmin}, true
}

func loginHandler(c *gin.Context) {
	var input struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if !bindJSON(c, &input) {
		return
	}
	token, err := models.Login(c.Request.Context(), input.Username, input.Password)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token})
}

func createUserHandler(c *gin.Context) {
	var input models.NewUser
	if !bindJSON(c, &input) {
		return
	}
	user, err := models.CreateUser(c.Request.Context(), &input)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, user)
}

func getUserHandler(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	user, err := models.GetUser(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

// ---- budget hierarchy ----

func createProgramHandler(c *gin.Context) {
	var input models.NewProgram
	if !bindJSON(c, &input) {
		return
	}
	program, err := models.CreateProgram(c.Request.Context(), &input)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, program)
}

func getProgramHandler(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	program, err := models.GetProgram(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, program)
}

func listProgramsHandler(c *gin.Context) {
	programs, err := models.GetPrograms(c.Request.Context(), queryInt(c, "fiscal_year"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, programs)
}

func updateProgramHandler(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	var input models.NewProgram
	if !bindJSON(c, &input) {
		return
	}
	program, err := models.UpdateProgram(c.Request.Context(), id, &input)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, program)
}

func deleteProgramHandler(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	program, err := models.DeleteProgram(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, program)
}

func createActivityHandler(c *gin.Context) {
	var input models.NewActivity
	if !bindJSON(c, &input) {
		return
	}
	activity, err := models.CreateActivity(c.Request.Context(), &input)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, activity)
}

func listActivitiesHandler(c *gin.Context) {
	activities, err := models.GetActivities(c.Request.Context(), queryInt(c, "program_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, activities)
}

func updateActivityHandler(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	var input models.NewActivity
	if !bindJSON(c, &input) {
		return
	}
	activity, err := models.UpdateActivity(c.Request.Context(), id, &input)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, activity)
}

func deleteActivityHandler(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	activity, err := models.DeleteActivity(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, activity)
}

func createSubActivityHandler(c *gin.Context) {
	var input models.NewSubActivity
	if !bindJSON(c, &input) {
		return
	}
	subActivity, err := models.CreateSubActivity(c.Request.Context(), &input)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, subActivity)
}

func listSubActivitiesHandler(c *gin.Context) {
	subActivities, err := models.GetSubActivities(c.Request.Context(), queryInt(c, "activity_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, subActivities)
}

func updateSubActivityHandler(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	var input models.NewSubActivity
	if !bindJSON(c, &input) {
		return
	}
	subActivity, err := models.UpdateSubActivity(c.Request.Context(), id, &input)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, subActivity)
}

func deleteSubActivityHandler(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	subActivity, err := models.DeleteSubActivity(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, subActivity)
}

func createBudgetItemHandler(c *gin.Context) {
	var input models.NewBudgetItem
	if !bindJSON(c, &input) {
		return
	}
	item, err := models.CreateBudgetItem(c.Request.Context(), &input)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, item)
}

func getBudgetItemHandler(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	item, err := models.GetBudgetItem(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

func listBudgetItemsHandler(c *gin.Context) {
	items, err := models.GetBudgetItems(c.Request.Context(), queryInt(c, "sub_activity_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, items)
}

func updateBudgetItemHandler(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	var input models.NewBudgetItem
	if !bindJSON(c, &input) {
		return
	}
	item, err := models.UpdateBudgetItem(c.Request.Context(), id, &input)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

func deleteBudgetItemHandler(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	item, err := models.DeleteBudgetItem(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

// ---- monthly plans ----

func createMonthlyPlanHandler(c *gin.Context) {
	var input models.NewMonthlyPlan
	if !bindJSON(c, &input) {
		return
	}
	plan, err := models.CreateMonthlyPlan(c.Request.Context(), &input)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, plan)
}

func listMonthlyPlansHandler(c *gin.Context) {
	plans, err := models.GetMonthlyPlans(c.Request.Context(),
		queryInt(c, "budget_item_id"), queryInt(c, "year"), queryInt(c, "month"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, plans)
}

func updateMonthlyPlanHandler(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	var input models.NewMonthlyPlan
	if !bindJSON(c, &input) {
		return
	}
	plan, err := models.UpdateMonthlyPlan(c.Request.Context(), id, &input)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, plan)
}

func deleteMonthlyPlanHandler(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	plan, err := models.DeleteMonthlyPlan(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, plan)
}

type generatePlansRequest struct {
	BudgetItemId int                          `json:"budget_item_id" binding:"required"`
	Year         int                          `json:"year" binding:"required"`
	Allocations  []workflow.MonthlyAllocation `json:"allocations"`
}

func generateEqualPlansHandler(c *gin.Context) {
	var input generatePlansRequest
	if !bindJSON(c, &input) {
		return
	}
	plans, err := workflow.GenerateEqualPlans(c.Request.Context(), input.BudgetItemId, input.Year)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, plans)
}

func generateCustomPlansHandler(c *gin.Context) {
	var input generatePlansRequest
	if !bindJSON(c, &input) {
		return
	}
	plans, err := workflow.GenerateCustomPlans(c.Request.Context(), input.BudgetItemId, input.Year, input.Allocations)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, plans)
}

func generateFromPreviousYearHandler(c *gin.Context) {
	var input generatePlansRequest
	if !bindJSON(c, &input) {
		return
	}
	plans, err := workflow.GenerateFromPreviousYear(c.Request.Context(), input.BudgetItemId, input.Year)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, plans)
}

func validatePlansHandler(c *gin.Context) {
	subActivityId := queryInt(c, "sub_activity_id")
	year := queryInt(c, "year")
	if subActivityId == nil || year == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "sub_activity_id and year are required"})
		return
	}
	discrepancies, err := workflow.ValidatePlans(c.Request.Context(), *subActivityId, *year)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"valid": len(discrepancies) == 0, "discrepancies": discrepancies})
}

func importPlansHandler(c *gin.Context) {
	subActivityId := queryInt(c, "sub_activity_id")
	year := queryInt(c, "year")
	if subActivityId == nil || year == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "sub_activity_id and year are required"})
		return
	}
	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "could not read file"})
		return
	}
	defer file.Close()

	result, err := workflow.ImportPlansFromXlsx(c.Request.Context(), *subActivityId, *year, fileHeader.Filename, file)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// ---- realizations and workflow ----

func createRealizationHandler(c *gin.Context) {
	var input models.NewMonthlyRealization
	if !bindJSON(c, &input) {
		return
	}
	realization, err := models.CreateMonthlyRealization(c.Request.Context(), &input)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, realization)
}

func getRealizationHandler(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	realization, err := models.GetMonthlyRealization(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, realization)
}

func listRealizationsHandler(c *gin.Context) {
	var status *models.ApprovalStatus
	if raw := c.Query("status"); raw != "" {
		parsed, err := models.ParseApprovalStatus(raw)
		if err != nil {
			writeError(c, err)
			return
		}
		status = &parsed
	}
	realizations, err := models.GetMonthlyRealizations(c.Request.Context(),
		status, queryInt(c, "year"), queryInt(c, "month"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, realizations)
}

func updateRealizationHandler(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	var input models.NewMonthlyRealization
	if !bindJSON(c, &input) {
		return
	}
	realization, err := models.UpdateMonthlyRealization(c.Request.Context(), id, &input)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, realization)
}

func deleteRealizationHandler(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	realization, err := models.DeleteMonthlyRealization(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, realization)
}

func transitionHandler(fn func(c *gin.Context, id int, actor workflow.Actor) (*models.MonthlyRealization, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		actor, ok := actorFromContext(c)
		if !ok {
			return
		}
		realization, err := fn(c, id, actor)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, realization)
	}
}

func submitRealizationHandler() gin.HandlerFunc {
	return transitionHandler(func(c *gin.Context, id int, actor workflow.Actor) (*models.MonthlyRealization, error) {
		return workflow.SubmitRealization(c.Request.Context(), id, actor)
	})
}

func verifyRealizationHandler() gin.HandlerFunc {
	return transitionHandler(func(c *gin.Context, id int, actor workflow.Actor) (*models.MonthlyRealization, error) {
		return workflow.VerifyRealization(c.Request.Context(), id, actor)
	})
}

func rejectRealizationHandler() gin.HandlerFunc {
	return transitionHandler(func(c *gin.Context, id int, actor workflow.Actor) (*models.MonthlyRealization, error) {
		var input struct {
			Reason string `json:"reason" binding:"required"`
		}
		if err := c.ShouldBindJSON(&input); err != nil {
			return nil, utils.NewValidationError("rejection reason is required")
		}
		return workflow.RejectRealization(c.Request.Context(), id, actor, input.Reason)
	})
}

func approveRealizationHandler() gin.HandlerFunc {
	return transitionHandler(func(c *gin.Context, id int, actor workflow.Actor) (*models.MonthlyRealization, error) {
		return workflow.ApproveRealization(c.Request.Context(), id, actor)
	})
}

func lockRealizationHandler() gin.HandlerFunc {
	return transitionHandler(func(c *gin.Context, id int, actor workflow.Actor) (*models.MonthlyRealization, error) {
		return workflow.LockRealization(c.Request.Context(), id, actor)
	})
}

func unlockRealizationHandler() gin.HandlerFunc {
	return transitionHandler(func(c *gin.Context, id int, actor workflow.Actor) (*models.MonthlyRealization, error) {
		var input struct {
			Notes string `json:"notes" binding:"required"`
		}
		if err := c.ShouldBindJSON(&input); err != nil {
			return nil, utils.NewValidationError("unlock notes are required")
		}
		return workflow.UnlockRealization(c.Request.Context(), id, actor, input.Notes)
	})
}

type batchTransitionRequest struct {
	Ids []int `json:"ids" binding:"required,min=1"`
}

func batchVerifyHandler(c *gin.Context) {
	var input batchTransitionRequest
	if !bindJSON(c, &input) {
		return
	}
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	result, err := workflow.BatchVerifyRealizations(c.Request.Context(), input.Ids, actor)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func batchApproveHandler(c *gin.Context) {
	var input batchTransitionRequest
	if !bindJSON(c, &input) {
		return
	}
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	result, err := workflow.BatchApproveRealizations(c.Request.Context(), input.Ids, actor)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func listApprovalHistoriesHandler(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	histories, err := models.GetApprovalHistories(c.Request.Context(), &id, nil)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, histories)
}

// ---- documents ----

func createDocumentHandler(c *gin.Context) {
	var input models.NewRealizationDocument
	if !bindJSON(c, &input) {
		return
	}
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	document, err := models.CreateRealizationDocument(c.Request.Context(), &input, actor.ID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, document)
}

func documentURLHandler(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	url, err := models.GetRealizationFileURL(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": url})
}

func deleteDocumentHandler(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	document, err := models.DeleteRealizationDocument(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, document)
}

// ---- deviation alerts ----

func listAlertsHandler(c *gin.Context) {
	var status *models.AlertStatus
	if raw := c.Query("status"); raw != "" {
		s := models.AlertStatus(raw)
		status = &s
	}
	var severity *models.AlertSeverity
	if raw := c.Query("severity"); raw != "" {
		s := models.AlertSeverity(raw)
		severity = &s
	}
	alerts, err := models.GetDeviationAlerts(c.Request.Context(),
		status, severity, queryInt(c, "year"), queryInt(c, "month"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, alerts)
}

func alertActionHandler(fn func(c *gin.Context, id int, actor workflow.Actor) (*models.DeviationAlert, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		actor, ok := actorFromContext(c)
		if !ok {
			return
		}
		alert, err := fn(c, id, actor)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, alert)
	}
}

func acknowledgeAlertHandler() gin.HandlerFunc {
	return alertActionHandler(func(c *gin.Context, id int, actor workflow.Actor) (*models.DeviationAlert, error) {
		return models.AcknowledgeAlert(c.Request.Context(), id, actor.ID)
	})
}

func resolveAlertHandler() gin.HandlerFunc {
	return alertActionHandler(func(c *gin.Context, id int, actor workflow.Actor) (*models.DeviationAlert, error) {
		var input struct {
			ResolutionNotes string `json:"resolution_notes" binding:"required"`
		}
		if err := c.ShouldBindJSON(&input); err != nil {
			return nil, utils.NewValidationError("resolution notes are required")
		}
		return models.ResolveAlert(c.Request.Context(), id, actor.ID, input.ResolutionNotes)
	})
}

func dismissAlertHandler() gin.HandlerFunc {
	return alertActionHandler(func(c *gin.Context, id int, actor workflow.Actor) (*models.DeviationAlert, error) {
		return models.DismissAlert(c.Request.Context(), id, actor.ID)
	})
}

func deleteAlertHandler(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	alert, err := models.DeleteDeviationAlert(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, alert)
}
