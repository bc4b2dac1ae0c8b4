package vuser

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/cuemby/loadgen/pkg/log"
	"github.com/cuemby/loadgen/pkg/metrics"
)

type authResponse struct {
	Token  string `json:"token"`
	UserID string `json:"userId"`
}

// authenticate attempts login; on any non-200 it falls through to register
// then a second login attempt. Registration failure or a second failed
// login is a terminal error for this user.
func (u *User) authenticate(ctx context.Context) error {
	status, resp, err := u.login(ctx)
	if err == nil && status == http.StatusOK {
		u.token = resp.Token
		u.userID = resp.UserID
		return nil
	}

	if err := u.register(ctx); err != nil {
		return fmt.Errorf("register: %w", err)
	}

	status, resp, err = u.login(ctx)
	if err != nil {
		return fmt.Errorf("login retry: %w", err)
	}
	if status != http.StatusOK {
		return fmt.Errorf("login retry: status %d", status)
	}

	u.token = resp.Token
	u.userID = resp.UserID
	return nil
}

func (u *User) login(ctx context.Context) (int, *authResponse, error) {
	body, _ := json.Marshal(map[string]string{
		"username": u.Username,
		"password": loginPassword,
	})

	timer := metrics.NewTimer()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.userServiceURL+"/api/users/login", bytes.NewReader(body))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := u.client.Do(req)
	timer.ObserveDurationVec(metrics.RequestDuration, "user", "login")
	if err != nil {
		metrics.RequestsTotal.WithLabelValues("user", "login", "error").Inc()
		return 0, nil, err
	}
	defer resp.Body.Close()
	metrics.RequestsTotal.WithLabelValues("user", "login", fmt.Sprintf("%d", resp.StatusCode)).Inc()

	var parsed authResponse
	if resp.StatusCode == http.StatusOK {
		_ = json.NewDecoder(resp.Body).Decode(&parsed)
	}
	return resp.StatusCode, &parsed, nil
}

func (u *User) register(ctx context.Context) error {
	body, _ := json.Marshal(map[string]string{
		"username": u.Username,
		"password": loginPassword,
	})

	timer := metrics.NewTimer()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.userServiceURL+"/api/users/register", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := u.client.Do(req)
	timer.ObserveDurationVec(metrics.RequestDuration, "user", "register")
	if err != nil {
		metrics.RequestsTotal.WithLabelValues("user", "register", "error").Inc()
		return err
	}
	defer resp.Body.Close()
	metrics.RequestsTotal.WithLabelValues("user", "register", fmt.Sprintf("%d", resp.StatusCode)).Inc()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		log.WithUserID(u.Username).Warn().Int("status", resp.StatusCode).Msg("vuser: register failed")
		return fmt.Errorf("register: status %d", resp.StatusCode)
	}
	return nil
}
