package models

import (
	"log"

	"bitbucket.org/mmdatafocus/budget_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&Program{}, &Activity{}, &SubActivity{}, &BudgetItem{},
		&MonthlyPlan{}, &MonthlyRealization{}, &RealizationDocument{},
		&ApprovalHistory{},
		&DeviationAlert{},
		&NotificationRecord{},
		&User{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
