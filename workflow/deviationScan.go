package workflow

import (
	"context"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/budget_backend/config"
	"bitbucket.org/mmdatafocus/budget_backend/models"
	"bitbucket.org/mmdatafocus/budget_backend/utils"
	"github.com/bsm/redislock"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const (
	underRealizationThreshold       = -30
	underRealizationCriticalCutoff  = -50
	overRealizationThreshold        = 10
	overRealizationCriticalCutoff   = 30
	deadlineApproachingWindowInDays = 7

	deviationScanLockKey = "deviation-scan"
	deviationScanLockTTL = 10 * time.Minute
)

// ErrScanInProgress is returned when another scan holds the serialization
// lock, so callers can report a conflict instead of a server failure.
var ErrScanInProgress = utils.NewStateConflictError("start deviation scan", "idle", "running")

// ScanResult summarizes one deviation scan. Errors counts plans that failed
// individually; the scan itself still completes.
type ScanResult struct {
	PlansScanned  int `json:"plans_scanned"`
	AlertsRaised  int `json:"alerts_raised"`
	AlertsUpdated int `json:"alerts_updated"`
	Errors        int `json:"errors"`
}

// ClassifyDeviation maps a deviation percentage onto an alert type and
// severity. The second return is false when the deviation is within the
// accepted band and no alert applies.
func ClassifyDeviation(pct decimal.Decimal) (models.AlertType, models.AlertSeverity, bool) {
	if pct.LessThan(decimal.NewFromInt(underRealizationThreshold)) {
		severity := models.AlertSeverityHigh
		if pct.LessThan(decimal.NewFromInt(underRealizationCriticalCutoff)) {
			severity = models.AlertSeverityCritical
		}
		return models.AlertTypeUnderRealization, severity, true
	}
	if pct.GreaterThan(decimal.NewFromInt(overRealizationThreshold)) {
		severity := models.AlertSeverityHigh
		if pct.GreaterThan(decimal.NewFromInt(overRealizationCriticalCutoff)) {
			severity = models.AlertSeverityCritical
		}
		return models.AlertTypeOverRealization, severity, true
	}
	return "", "", false
}

// DeadlineDaysLeft returns the days remaining in the plan's month as seen
// from now, e.g. 1 on the second-to-last day.
func DeadlineDaysLeft(month int, year int, now time.Time) int {
	return utils.DaysInMonth(month, year) - now.Day()
}

// RunDeviationScan walks every monthly plan in the (year[, month]) window and
// raises or refreshes deviation alerts. Each plan is processed in its own
// small transaction so one bad row cannot abort the scan. Re-running on
// identical data is idempotent per the alert upsert rule.
func RunDeviationScan(ctx context.Context, logger *logrus.Logger, year int, month int, now time.Time) (*ScanResult, error) {
	db := config.GetDB()

	// Best-effort serialization: overlapping scheduled and manual scans would
	// only duplicate work, so a second caller bows out.
	if locker := config.GetRedisLock(); locker != nil {
		lock, err := locker.Obtain(ctx, deviationScanLockKey, deviationScanLockTTL, nil)
		if err == redislock.ErrNotObtained {
			return nil, ErrScanInProgress
		}
		if err == nil {
			defer lock.Release(ctx)
		}
	}

	var plans []*models.MonthlyPlan
	dbCtx := db.WithContext(ctx).Where("year = ?", year)
	if month > 0 {
		dbCtx = dbCtx.Where("month = ?", month)
	}
	if err := dbCtx.Order("id ASC").Find(&plans).Error; err != nil {
		return nil, err
	}

	result := &ScanResult{}
	for _, plan := range plans {
		result.PlansScanned++
		created, updated, err := scanPlan(ctx, db, plan, now)
		if err != nil {
			result.Errors++
			config.LogError(logger, "deviationScan.go", "RunDeviationScan", "scanPlan", plan.ID, err)
			continue
		}
		result.AlertsRaised += created
		result.AlertsUpdated += updated
	}

	if result.AlertsRaised > 0 || result.AlertsUpdated > 0 {
		err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return models.PublishNotification(ctx, tx, models.NotificationEventAlertBatch,
				0, "DeviationScan", models.UserRoleFinance, result)
		})
		if err != nil {
			config.LogError(logger, "deviationScan.go", "RunDeviationScan", "PublishNotification", result, err)
		}
	}

	logger.WithFields(logrus.Fields{
		"year":           year,
		"month":          month,
		"plans_scanned":  result.PlansScanned,
		"alerts_raised":  result.AlertsRaised,
		"alerts_updated": result.AlertsUpdated,
		"errors":         result.Errors,
	}).Info("deviation scan finished")

	return result, nil
}

// scanPlan applies the per-plan checks and upserts at most one alert per
// check in its own transaction. Returns (created, updated) counts.
func scanPlan(ctx context.Context, db *gorm.DB, plan *models.MonthlyPlan, now time.Time) (int, int, error) {
	if plan.PlannedAmount.LessThanOrEqual(decimal.Zero) {
		return 0, 0, nil
	}

	created, updated := 0, 0
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var item models.BudgetItem
		if err := tx.First(&item, plan.BudgetItemId).Error; err != nil {
			return err
		}

		realization, err := models.GetRealizationByPlanId(tx, plan.ID)
		if err != nil && err != gorm.ErrRecordNotFound {
			return err
		}
		hasRealization := err == nil

		currentMonth := plan.Year == now.Year() && plan.Month == int(now.Month())
		pastMonth := plan.Year < now.Year() || (plan.Year == now.Year() && plan.Month < int(now.Month()))

		if pastMonth && !hasRealization {
			wasCreated, uerr := models.UpsertDeviationAlert(tx, models.AlertUpsertInput{
				BudgetItemId:  plan.BudgetItemId,
				Month:         plan.Month,
				Year:          plan.Year,
				AlertType:     models.AlertTypeNotRealized,
				Severity:      models.AlertSeverityHigh,
				PlannedAmount: plan.PlannedAmount,
				Message: fmt.Sprintf("%s has no recorded realization for %s %d",
					item.Name, utils.MonthName(plan.Month), plan.Year),
			})
			if uerr != nil {
				return uerr
			}
			bump(&created, &updated, wasCreated)
		}

		// Deviation is an early-warning signal: it fires for any recorded
		// realization regardless of its approval status.
		if hasRealization {
			pct := models.ComputeDeviationPercentage(plan.PlannedAmount, realization.RealizedAmount)
			if alertType, severity, ok := ClassifyDeviation(pct); ok {
				direction := "under"
				if alertType == models.AlertTypeOverRealization {
					direction = "over"
				}
				wasCreated, uerr := models.UpsertDeviationAlert(tx, models.AlertUpsertInput{
					BudgetItemId:        plan.BudgetItemId,
					Month:               plan.Month,
					Year:                plan.Year,
					AlertType:           alertType,
					Severity:            severity,
					PlannedAmount:       plan.PlannedAmount,
					RealizedAmount:      realization.RealizedAmount,
					DeviationPercentage: pct,
					Message: fmt.Sprintf("%s is %s plan by %s%% for %s %d",
						item.Name, direction, pct.Abs().StringFixed(2), utils.MonthName(plan.Month), plan.Year),
				})
				if uerr != nil {
					return uerr
				}
				bump(&created, &updated, wasCreated)
			}
		}

		if currentMonth && !hasRealization {
			daysLeft := DeadlineDaysLeft(plan.Month, plan.Year, now)
			if daysLeft > 0 && daysLeft <= deadlineApproachingWindowInDays {
				wasCreated, uerr := models.UpsertDeviationAlert(tx, models.AlertUpsertInput{
					BudgetItemId:  plan.BudgetItemId,
					Month:         plan.Month,
					Year:          plan.Year,
					AlertType:     models.AlertTypeDeadlineApproaching,
					Severity:      models.AlertSeverityMedium,
					PlannedAmount: plan.PlannedAmount,
					Message: fmt.Sprintf("%s has %d day(s) left to record realization for %s %d",
						item.Name, daysLeft, utils.MonthName(plan.Month), plan.Year),
				})
				if uerr != nil {
					return uerr
				}
				bump(&created, &updated, wasCreated)
			}
		}
		return nil
	})
	if err != nil {
		return 0, 0, err
	}
	return created, updated, nil
}

func bump(created *int, updated *int, wasCreated bool) {
	if wasCreated {
		*created++
	} else {
		*updated++
	}
}
