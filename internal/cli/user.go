package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/suPer8Hu/sealchat/internal/auth"
	"github.com/suPer8Hu/sealchat/internal/models"
	"gorm.io/gorm"
)

var ErrUserExists = errors.New("username or email already registered")

var createUserCmd = &cobra.Command{
	Use:   "create-user",
	Short: "Create an active user account",
	RunE:  runCreateUser,
}

var (
	usernameFlag string
	emailFlag    string
	passwordFlag string
)

func init() {
	createUserCmd.Flags().StringVar(&usernameFlag, "username", "", "Login name")
	createUserCmd.Flags().StringVar(&emailFlag, "email", "", "Email address")
	createUserCmd.Flags().StringVar(&passwordFlag, "password", "", "Plain-text password")
	_ = createUserCmd.MarkFlagRequired("username")
	_ = createUserCmd.MarkFlagRequired("password")
}

func runCreateUser(cmd *cobra.Command, args []string) error {
	gdb, err := openDB()
	if err != nil {
		return err
	}
	email := emailFlag
	if email == "" {
		email = usernameFlag + "@example.com"
	}
	u, err := createUser(cmd.Context(), gdb, usernameFlag, email, passwordFlag)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "created user %s (id=%d)\n", u.Username, u.ID)
	return nil
}

func createUser(ctx context.Context, gdb *gorm.DB, username, email, password string) (*models.User, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)
	if username == "" || password == "" {
		return nil, errors.New("username and password are required")
	}

	var cnt int64
	if err := gdb.WithContext(ctx).Model(&models.User{}).
		Where("username = ? OR email = ?", username, email).
		Count(&cnt).Error; err != nil {
		return nil, fmt.Errorf("checking existing users: %w", err)
	}
	if cnt > 0 {
		return nil, ErrUserExists
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, err
	}
	u := &models.User{Username: username, Email: email, PasswordHash: hash, IsActive: true}
	if err := gdb.WithContext(ctx).Create(u).Error; err != nil {
		return nil, fmt.Errorf("creating user: %w", err)
	}
	return u, nil
}
