package api

import (
	"errors"   // Error inspection
	"net/http" // HTTP status codes

	"digital_wallet/internal/domain"     // Importing domain models
	"digital_wallet/internal/repository" // User storage
	"digital_wallet/internal/utils"      // Utility functions

	"github.com/gin-gonic/gin"   // Gin web framework
	"github.com/sirupsen/logrus" // Logging library
	"golang.org/x/crypto/bcrypt" // Password hashing
	"gorm.io/gorm"               // Duplicate key detection
)

// RegisterRequest is the body of POST /auth/register
type RegisterRequest struct {
	Email    string `json:"email" binding:"required,email"` // Email must be provided
	FullName string `json:"full_name"`                      // Optional display name
	Password string `json:"password" binding:"required"`    // Password must be provided
}

// LoginRequest is the body of POST /auth/login
type LoginRequest struct {
	Email    string `json:"email" binding:"required"`    // Email must be provided
	Password string `json:"password" binding:"required"` // Password must be provided
}

// AuthResponse struct for authentication
type AuthResponse struct {
	Token string `json:"token"` // JWT token
}

// isValidPassword checks if the password length is between 8 and 64 characters
func isValidPassword(password string) bool {
	return len(password) >= 8 && len(password) <= 64 // bcrypt ignores bytes past 72
}

// RegisterHandler creates a regular user account
func RegisterHandler(users *repository.UserRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req RegisterRequest // Bind JSON request to struct
		if err := c.ShouldBindJSON(&req); err != nil {
			// If binding fails, return bad request
			badRequest(c, "A valid email and a password are required")
			return
		}
		// Validate password length
		if !isValidPassword(req.Password) {
			badRequest(c, "Password must be 8-64 characters")
			return
		}
		// Hash the password and create the user
		hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
		if err != nil {
			// If hashing fails, return internal server error
			c.JSON(http.StatusInternalServerError, gin.H{"code": "InternalError", "error": "Failed to hash password"})
			return
		}
		user := domain.User{
			Email:    req.Email,       // Normalized by the repository
			FullName: req.FullName,    // Display name
			Password: string(hash),    // Password hash
			Role:     domain.RoleUser, // Regular user
			IsActive: true,            // Active on creation
		}
		// Attempt to create the user in the database
		if err := users.Create(c.Request.Context(), &user); err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				c.JSON(http.StatusConflict, gin.H{"code": "EmailTaken", "error": "Email already registered"})
				return
			}
			logrus.WithError(err).Error("Failed to create user")
			c.JSON(http.StatusInternalServerError, gin.H{"code": "InternalError", "error": "Failed to create user"})
			return
		}
		logrus.WithFields(logrus.Fields{"user_id": user.ID, "email": user.Email}).Info("User registered")
		// Return success response
		c.JSON(http.StatusCreated, gin.H{"message": "User registered successfully", "user": user})
	}
}

// LoginHandler authenticates a user and returns a JWT token
func LoginHandler(users *repository.UserRepository, jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req LoginRequest // Bind JSON request to struct
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "Invalid request")
			return
		}
		user, err := users.FindByEmail(c.Request.Context(), req.Email) // Fetch user from database
		if err != nil || !user.IsActive {
			// Unknown and disabled accounts look the same to the caller
			c.JSON(http.StatusUnauthorized, gin.H{"code": "InvalidCredentials", "error": "Invalid credentials"})
			return
		}
		// Compare provided password with stored hash
		if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"code": "InvalidCredentials", "error": "Invalid credentials"})
			return
		}
		// Generate JWT token
		token, err := utils.GenerateJWT(user.ID, user.Role, jwtSecret)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"code": "InternalError", "error": "Failed to generate token"})
			return
		}
		// Return the token in the response
		c.JSON(http.StatusOK, AuthResponse{Token: token})
	}
}
