package models

import (
	"context"
	"encoding/base64"
	"path"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/budget_backend/config"
	"bitbucket.org/mmdatafocus/budget_backend/utils"
)

// RealizationDocument is supporting evidence attached to a realization.
// Attachments may only change while the realization itself is editable.
type RealizationDocument struct {
	ID                   int       `gorm:"primary_key" json:"id"`
	MonthlyRealizationId int       `gorm:"index;not null" json:"monthly_realization_id" binding:"required"`
	FileName             string    `gorm:"size:255;not null" json:"file_name"`
	ObjectName           string    `gorm:"size:255;not null" json:"object_name"`
	ThumbnailObjectName  string    `gorm:"size:255" json:"thumbnail_object_name"`
	MimeType             string    `gorm:"size:100" json:"mime_type"`
	UploadedBy           int       `gorm:"index" json:"uploaded_by"`
	CreatedAt            time.Time `gorm:"autoCreateTime" json:"created_at"`
}

type NewRealizationDocument struct {
	MonthlyRealizationId int    `json:"monthly_realization_id" binding:"required"`
	FileName             string `json:"file_name" binding:"required"`
	// Data is the base64-encoded file content.
	Data string `json:"data" binding:"required"`
}

func CreateRealizationDocument(ctx context.Context, input *NewRealizationDocument, uploadedBy int) (*RealizationDocument, error) {
	db := config.GetDB()

	var realization MonthlyRealization
	if err := db.WithContext(ctx).First(&realization, input.MonthlyRealizationId).Error; err != nil {
		return nil, utils.NewNotFoundError("realization not found")
	}
	if err := realization.guardEditable(); err != nil {
		return nil, err
	}

	data, err := base64.StdEncoding.DecodeString(input.Data)
	if err != nil {
		return nil, utils.NewValidationError("file data must be base64 encoded")
	}

	objectName := "realizations/" + utils.GenerateUniqueFilename() + path.Ext(input.FileName)
	mimeType, err := utils.UploadFileToGCS(ctx, objectName, data)
	if err != nil {
		return nil, err
	}

	doc := RealizationDocument{
		MonthlyRealizationId: realization.ID,
		FileName:             input.FileName,
		ObjectName:           objectName,
		MimeType:             mimeType,
		UploadedBy:           uploadedBy,
	}

	if strings.HasPrefix(mimeType, "image/") {
		if thumb, terr := utils.MakeImageThumbnail(data); terr == nil {
			thumbName := strings.TrimSuffix(objectName, path.Ext(objectName)) + "_thumb.jpg"
			if _, uerr := utils.UploadFileToGCS(ctx, thumbName, thumb); uerr == nil {
				doc.ThumbnailObjectName = thumbName
			}
		}
	}

	if err := db.WithContext(ctx).Create(&doc).Error; err != nil {
		return nil, err
	}
	return &doc, nil
}

func GetRealizationFileURL(ctx context.Context, id int) (string, error) {
	db := config.GetDB()
	var doc RealizationDocument

	if err := db.WithContext(ctx).First(&doc, id).Error; err != nil {
		return "", utils.ErrorRecordNotFound
	}
	return utils.SignedObjectURL(ctx, doc.ObjectName, 15*time.Minute)
}

func DeleteRealizationDocument(ctx context.Context, id int) (*RealizationDocument, error) {
	db := config.GetDB()
	var doc RealizationDocument

	if err := db.WithContext(ctx).First(&doc, id).Error; err != nil {
		return nil, utils.ErrorRecordNotFound
	}

	var realization MonthlyRealization
	if err := db.WithContext(ctx).First(&realization, doc.MonthlyRealizationId).Error; err != nil {
		return nil, utils.NewNotFoundError("realization not found")
	}
	if err := realization.guardEditable(); err != nil {
		return nil, err
	}

	if err := db.WithContext(ctx).Delete(&doc).Error; err != nil {
		return nil, err
	}

	// Object removal is best-effort; an orphan in the bucket is harmless.
	if err := utils.DeleteFileFromGCS(ctx, doc.ObjectName); err != nil {
		config.LogError(config.GetLogger(), "realizationDocument.go", "DeleteRealizationDocument", "DeleteFileFromGCS", doc.ObjectName, err)
	}
	if doc.ThumbnailObjectName != "" {
		if err := utils.DeleteFileFromGCS(ctx, doc.ThumbnailObjectName); err != nil {
			config.LogError(config.GetLogger(), "realizationDocument.go", "DeleteRealizationDocument", "DeleteFileFromGCS thumbnail", doc.ThumbnailObjectName, err)
		}
	}
	return &doc, nil
}
