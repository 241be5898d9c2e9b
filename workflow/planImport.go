package workflow

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/budget_backend/config"
	"bitbucket.org/mmdatafocus/budget_backend/models"
	"bitbucket.org/mmdatafocus/budget_backend/utils"
	"github.com/bsm/redislock"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"
)

const planImportLockTTL = 5 * time.Minute

// ImportResult summarizes an xlsx plan import. SkippedRows holds one
// human-readable message per row that could not be applied.
type ImportResult struct {
	Processed   int      `json:"processed"`
	Skipped     int      `json:"skipped"`
	SkippedRows []string `json:"skipped_rows"`
}

type planImportRow struct {
	ItemCode string
	Month    int
	Volume   string
	Amount   string
}

// ImportPlansFromXlsx reads a DPA worksheet (budget item code, month, planned
// volume, planned amount) and upserts monthly plans for the year. Rows whose
// item code is unknown or whose plan is frozen by a realization are skipped
// and reported; parse errors abort the import before anything is written.
func ImportPlansFromXlsx(ctx context.Context, subActivityId int, year int, filename string, file io.Reader) (*ImportResult, error) {
	if !strings.HasSuffix(filename, ".xlsx") {
		return nil, utils.NewValidationError("invalid file type: only .xlsx files are allowed")
	}
	if err := utils.ValidateResourceId[models.SubActivity](ctx, subActivityId); err != nil {
		return nil, utils.NewNotFoundError("sub activity not found")
	}

	f, err := excelize.OpenReader(file)
	if err != nil {
		return nil, utils.NewValidationError("unable to open Excel file: %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows(f.GetSheetName(0))
	if err != nil {
		return nil, utils.NewValidationError("unable to read sheet: %v", err)
	}
	if len(rows) < 2 {
		return nil, utils.NewValidationError("worksheet has no data rows")
	}

	parsed := make([]planImportRow, 0, len(rows)-1)
	for idx, row := range rows[1:] {
		if len(row) == 0 || strings.TrimSpace(row[0]) == "" {
			continue
		}
		if len(row) < 4 {
			return nil, utils.NewValidationError("row %d: expected 4 columns (code, month, volume, amount)", idx+2)
		}
		month, err := strconv.Atoi(strings.TrimSpace(row[1]))
		if err != nil || month < 1 || month > 12 {
			return nil, utils.NewValidationError("row %d: invalid month %q", idx+2, row[1])
		}
		parsed = append(parsed, planImportRow{
			ItemCode: strings.TrimSpace(row[0]),
			Month:    month,
			Volume:   row[2],
			Amount:   row[3],
		})
	}

	// Concurrent imports against the same sub activity would interleave the
	// totals recompute, so they are serialized when redis is available.
	if locker := config.GetRedisLock(); locker != nil {
		lockKey := fmt.Sprintf("plan-import:%d", subActivityId)
		lock, lerr := locker.Obtain(ctx, lockKey, planImportLockTTL, nil)
		if lerr == redislock.ErrNotObtained {
			return nil, utils.NewStateConflictError("import plans", "no import in progress", "another import is running")
		}
		if lerr == nil {
			defer lock.Release(ctx)
		}
	}

	db := config.GetDB()
	result := &ImportResult{SkippedRows: []string{}}

	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for idx, row := range parsed {
			item, ierr := models.GetBudgetItemByCode(ctx, tx, row.ItemCode)
			if ierr != nil {
				result.Skipped++
				result.SkippedRows = append(result.SkippedRows,
					fmt.Sprintf("row %d: budget item with code %s not found", idx+2, row.ItemCode))
				continue
			}
			if item.SubActivityId != subActivityId {
				result.Skipped++
				result.SkippedRows = append(result.SkippedRows,
					fmt.Sprintf("row %d: budget item %s belongs to another sub activity", idx+2, row.ItemCode))
				continue
			}

			volume, perr := utils.ParseDecimal(row.Volume)
			if perr != nil {
				return utils.NewValidationError("row %d: could not parse volume: %v", idx+2, perr)
			}
			amount, perr := utils.ParseDecimal(row.Amount)
			if perr != nil {
				return utils.NewValidationError("row %d: could not parse amount: %v", idx+2, perr)
			}

			uerr := models.UpsertMonthlyPlan(tx, item.ID, row.Month, year, volume, amount)
			if uerr != nil {
				if utils.IsKind(uerr, utils.ErrorKindImmutable) {
					result.Skipped++
					result.SkippedRows = append(result.SkippedRows,
						fmt.Sprintf("row %d: plan for %s %s %d already has a realization", idx+2, row.ItemCode, utils.MonthName(row.Month), year))
					continue
				}
				return uerr
			}
			result.Processed++
		}
		return models.RecomputeHierarchyTotals(tx, subActivityId)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
