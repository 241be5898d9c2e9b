package models

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"bitbucket.org/mmdatafocus/budget_backend/config"
	"bitbucket.org/mmdatafocus/budget_backend/utils"
	"gorm.io/gorm"
)

const userCacheTTL = 10 * time.Minute

func UserCacheKey(id int) string {
	return fmt.Sprintf("user:%d", id)
}

type User struct {
	ID        int       `gorm:"primary_key" json:"id"`
	Name      string    `gorm:"size:100;not null" json:"name" binding:"required"`
	Username  string    `gorm:"size:100;not null;uniqueIndex" json:"username" binding:"required"`
	Password  string    `gorm:"size:255;not null" json:"-"`
	Role      UserRole  `gorm:"type:enum('Admin','Head','Finance','Planning','Execution');default:Execution" json:"role"`
	Email     string    `gorm:"size:255" json:"email"`
	Phone     string    `gorm:"size:30" json:"phone"`
	IsActive  *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewUser struct {
	Name     string   `json:"name" binding:"required"`
	Username string   `json:"username" binding:"required"`
	Password string   `json:"password" binding:"required,min=8"`
	Role     UserRole `json:"role" binding:"required"`
	Email    string   `json:"email"`
	Phone    string   `json:"phone"`
}

func phoneRegion() string {
	if v := os.Getenv("PHONE_REGION"); v != "" {
		return v
	}
	return "ID"
}

func CreateUser(ctx context.Context, input *NewUser) (*User, error) {
	db := config.GetDB()

	if _, err := ParseUserRole(string(input.Role)); err != nil {
		return nil, utils.NewValidationError("invalid user role %q", input.Role)
	}
	if err := utils.ValidateUnique[User](ctx, "username", input.Username, 0); err != nil {
		return nil, err
	}

	hashed, err := utils.HashPassword(input.Password)
	if err != nil {
		return nil, err
	}

	// WhatsApp delivery downstream needs canonical E.164 numbers.
	phone := input.Phone
	if phone != "" {
		phone, err = utils.NormalizePhoneNumber(input.Phone, phoneRegion())
		if err != nil {
			return nil, utils.NewValidationError("invalid phone number: %v", err)
		}
	}

	user := User{
		Name:     input.Name,
		Username: input.Username,
		Password: string(hashed),
		Role:     input.Role,
		Email:    input.Email,
		Phone:    phone,
		IsActive: utils.NewTrue(),
	}
	if err := db.WithContext(ctx).Create(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// GetUser reads through a short-lived Redis cache; user records rarely change
// and are fetched on every admin detail view.
func GetUser(ctx context.Context, id int) (*User, error) {
	var result User
	if found, _ := config.GetRedisObject(UserCacheKey(id), &result); found {
		return &result, nil
	}

	db := config.GetDB()
	err := db.WithContext(ctx).First(&result, id).Error
	if err != nil {
		return nil, utils.ErrorRecordNotFound
	}
	// Cache write is best effort.
	config.SetRedisObject(UserCacheKey(id), &result, userCacheTTL)
	return &result, nil
}

// GetActiveUsersByRole returns notification recipients for a workflow event.
// It reads through the caller's transaction so the recipient set matches the
// state being committed.
func GetActiveUsersByRole(tx *gorm.DB, role UserRole) ([]*User, error) {
	var results []*User

	err := tx.
		Where("role = ? AND is_active = ?", role, true).
		Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

func Login(ctx context.Context, username string, password string) (string, error) {
	db := config.GetDB()
	var user User

	err := db.WithContext(ctx).Where("username = ?", username).First(&user).Error
	if err != nil {
		return "", errors.New("invalid username or password")
	}
	if user.IsActive != nil && !*user.IsActive {
		return "", errors.New("user is inactive")
	}
	if err := utils.ComparePassword(user.Password, password); err != nil {
		return "", errors.New("invalid username or password")
	}

	return utils.JwtGenerate(user.ID, user.Name, string(user.Role))
}
