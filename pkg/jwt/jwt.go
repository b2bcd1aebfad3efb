package jwt

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims claims standard JWT plus les champs propres à l'application.
// Role permet au middleware RBAC de décider sans consulter la base.
type Claims struct {
	jwt.RegisteredClaims
	UserID    string `json:"user_id"`
	Matricule string `json:"matricule"` // Matricule fiscal de l'entreprise de l'utilisateur
	Role      string `json:"role"`      // "admin" | "comptable" | "lecteur"
}

// Generate génère un jeton JWT signé portant userID, matricule et role.
func Generate(secret, userID, matricule, role, issuer string, expMinutes int) (string, error) {
	if secret == "" {
		return "", fmt.Errorf("jwt: secret vide")
	}
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Duration(expMinutes) * time.Minute)),
		},
		UserID:    userID,
		Matricule: matricule,
		Role:      role,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// Parse valide le jeton et retourne userID, matricule et role. Erreur si
// le jeton est invalide, expiré ou mal signé.
func Parse(secret, tokenString string) (userID, matricule, role string, err error) {
	if secret == "" {
		return "", "", "", fmt.Errorf("jwt: secret vide")
	}
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("méthode de signature inattendue: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return "", "", "", err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return "", "", "", fmt.Errorf("claims invalides")
	}
	return claims.UserID, claims.Matricule, claims.Role, nil
}
