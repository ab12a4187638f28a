package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	domain "github.com/farmcart/api/internal/domain"
	"github.com/farmcart/api/internal/platform/auth"
	"github.com/farmcart/api/internal/services"
)

const defaultMaxBodySize = 64 * 1024

var (
	errEmptyBody    = errors.New("request body is empty")
	errBodyTooLarge = errors.New("request body exceeds allowed size")
)

func readLimitedBody(r *http.Request, limit int64) ([]byte, error) {
	if r == nil || r.Body == nil {
		return nil, errEmptyBody
	}
	if limit <= 0 {
		limit = defaultMaxBodySize
	}
	reader := io.LimitReader(r.Body, limit+1)
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, errEmptyBody
	}
	if int64(len(data)) > limit {
		return nil, errBodyTooLarge
	}
	return data, nil
}

func decodeJSONBody(r *http.Request, limit int64, dest any) error {
	data, err := readLimitedBody(r, limit)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return errors.New("invalid JSON body")
	}
	return nil
}

func writeJSONResponse(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func formatTimePointer(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}

// clientKey derives the rate limit key from the caller address, ignoring the port.
func clientKey(r *http.Request) string {
	addr := strings.TrimSpace(r.RemoteAddr)
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}

func actorFromIdentity(identity *auth.Identity) services.Actor {
	if identity == nil {
		return services.Actor{}
	}
	return services.Actor{
		ID:    strings.TrimSpace(identity.UserID),
		Role:  domain.Role(strings.TrimSpace(identity.Role)),
		Email: strings.TrimSpace(identity.Email),
	}
}

type addressPayload struct {
	CommunityName string `json:"communityName,omitempty"`
	ApartmentName string `json:"apartmentName,omitempty"`
	RoomNo        string `json:"roomNo,omitempty"`
	Street        string `json:"street,omitempty"`
	City          string `json:"city,omitempty"`
	Pincode       string `json:"pincode,omitempty"`
}

func buildAddressPayload(addr services.Address) addressPayload {
	return addressPayload{
		CommunityName: strings.TrimSpace(addr.CommunityName),
		ApartmentName: strings.TrimSpace(addr.ApartmentName),
		RoomNo:        strings.TrimSpace(addr.RoomNo),
		Street:        strings.TrimSpace(addr.Street),
		City:          strings.TrimSpace(addr.City),
		Pincode:       strings.TrimSpace(addr.Pincode),
	}
}

func (p addressPayload) toAddress() services.Address {
	return services.Address{
		CommunityName: strings.TrimSpace(p.CommunityName),
		ApartmentName: strings.TrimSpace(p.ApartmentName),
		RoomNo:        strings.TrimSpace(p.RoomNo),
		Street:        strings.TrimSpace(p.Street),
		City:          strings.TrimSpace(p.City),
		Pincode:       strings.TrimSpace(p.Pincode),
	}
}
