package authapi

import (
	"time"

	"sessiond/cmd/identity"
	"sessiond/cmd/internal/auth/session"
)

func toAccountResponse(a identity.Account) accountResponse {
	return accountResponse{
		ID:          a.ID,
		Email:       a.Email,
		DisplayName: a.DisplayName,
		Role:        string(a.Role),
		CreatedAt:   a.CreatedAt,
	}
}

func toSessionResponse(s session.Session, currentID string) sessionResponse {
	return sessionResponse{
		ID:             s.ID,
		Browser:        s.Device.Browser,
		OS:             s.Device.OS,
		DeviceClass:    string(s.Device.Class),
		IP:             s.IP,
		CreatedAt:      s.CreatedAt,
		LastActivityAt: s.LastActivityAt,
		ExpiresAt:      s.ExpiresAt,
		Current:        s.ID == currentID,
	}
}

func toInfoResponse(in session.Info) sessionInfoResponse {
	return sessionInfoResponse{
		SessionID:            in.SessionID,
		LastActivity:         in.LastActivity,
		ExpiresAt:            in.ExpiresAt,
		TimeRemainingSeconds: seconds(in.TimeRemaining),
		Expired:              in.Expired,
	}
}

func seconds(d time.Duration) int64 {
	if d <= 0 {
		return 0
	}
	return int64(d / time.Second)
}
