package integration

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/cucumber/godog"
	"github.com/golang-jwt/jwt/v5"

	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/model"
)

func (s *StepsContext) registerTokenSteps(sc *godog.ScenarioContext) {
	sc.Step(`^I should receive a valid token for "([^"]*)"$`, s.iShouldReceiveAValidTokenFor)
	sc.Step(`^I use an expired token for "([^"]*)"$`, s.iUseAnExpiredTokenFor)
	sc.Step(`^I use a token for "([^"]*)" signed with another key$`, s.iUseATokenSignedWithAnotherKey)
	sc.Step(`^I use no token$`, s.iUseNoToken)
}

// signToken signs a token shaped like the ones the server issues
func (s *StepsContext) signToken(username string, key []byte, expiresAt time.Time) (string, error) {
	var user model.User
	if err := s.tc.DB.Where("username = ?", username).First(&user).Error; err != nil {
		return "", fmt.Errorf("user %q not found: %w", username, err)
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":      strconv.FormatUint(uint64(user.ID), 10),
		"username": user.Username,
		"iat":      time.Now().Add(-2 * time.Hour).Unix(),
		"exp":      expiresAt.Unix(),
	})
	return token.SignedString(key)
}

func (s *StepsContext) iShouldReceiveAValidTokenFor(username string) error {
	var body struct {
		Token     string `json:"token"`
		ExpiresAt int64  `json:"expires_at"`
	}
	if err := json.Unmarshal(s.responseBody, &body); err != nil {
		return fmt.Errorf("response is not a token: %s", s.responseBody)
	}
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(body.Token, claims, func(t *jwt.Token) (interface{}, error) {
		return testSecretKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return fmt.Errorf("token does not verify: %w", err)
	}
	if claims["username"] != username {
		return fmt.Errorf("token was issued to %v, not %q", claims["username"], username)
	}
	if body.ExpiresAt <= time.Now().Unix() {
		return fmt.Errorf("token already expired at %d", body.ExpiresAt)
	}
	return nil
}

func (s *StepsContext) iUseAnExpiredTokenFor(username string) error {
	token, err := s.signToken(username, testSecretKey, time.Now().Add(-time.Hour))
	if err != nil {
		return err
	}
	s.authToken = token
	return nil
}

func (s *StepsContext) iUseATokenSignedWithAnotherKey(username string) error {
	token, err := s.signToken(username, []byte("some-other-secret"), time.Now().Add(time.Hour))
	if err != nil {
		return err
	}
	s.authToken = token
	return nil
}

func (s *StepsContext) iUseNoToken() error {
	s.authToken = ""
	return nil
}
