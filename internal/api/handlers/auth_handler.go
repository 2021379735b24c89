package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/nexdesk-ai/nexdesk/internal/core"
	"github.com/nexdesk-ai/nexdesk/internal/models"
)

type AuthHandler struct {
	dbclient  core.DbClient
	jwtSecret string
}

func NewAuthHandler(dbclient core.DbClient, jwtSecret string) *AuthHandler {
	return &AuthHandler{dbclient: dbclient, jwtSecret: jwtSecret}
}

type signupRequest struct {
	Name        string `json:"name"`
	Category    string `json:"category"`
	Description string `json:"description"`
	Email       string `json:"email"`
	Password    string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	if req.Name == "" || req.Email == "" || len(req.Password) < 8 {
		http.Error(w, "name, email and a password of 8+ characters are required", http.StatusBadRequest)
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		http.Error(w, "could not process password", http.StatusInternalServerError)
		return
	}

	business := &models.Business{
		ID:           uuid.NewString(),
		Name:         req.Name,
		Category:     req.Category,
		Description:  req.Description,
		OwnerEmail:   req.Email,
		PasswordHash: string(hash),
	}
	if err := h.dbclient.CreateBusiness(r.Context(), business); err != nil {
		http.Error(w, "business already exists", http.StatusConflict)
		return
	}

	token := h.generateJWT(business.ID)
	writeJSON(w, http.StatusCreated, map[string]string{
		"business_id": business.ID,
		"token":       token,
	})
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	business, err := h.dbclient.GetBusinessByEmail(r.Context(), req.Email)
	if err != nil || bcrypt.CompareHashAndPassword([]byte(business.PasswordHash), []byte(req.Password)) != nil {
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return
	}

	token := h.generateJWT(business.ID)
	writeJSON(w, http.StatusOK, map[string]string{
		"business_id": business.ID,
		"token":       token,
	})
}

// generateJWT creates a signed token carrying the business ID claim.
func (h *AuthHandler) generateJWT(businessID string) string {
	claims := jwt.MapClaims{
		"business_id": businessID,
		"exp":         time.Now().Add(24 * time.Hour).Unix(),
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	token, _ := tok.SignedString([]byte(h.jwtSecret))
	return token
}
