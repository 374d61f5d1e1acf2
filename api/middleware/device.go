package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/creatorpage-backend/pkg/logger"
)

const (
	DeviceIDHeader  = "X-Device-Id"
	deviceCookieAge = 365 * 24 * time.Hour
	maxDeviceIDLen  = 64
)

// Device identifies the browser across a login detour. The id comes from
// the X-Device-Id header or the device cookie; a new one is minted and set
// as a cookie when neither is present.
func Device(cookieName string, secure bool, logg *logger.Logger) func(http.Handler) http.Handler {
	if cookieName == "" {
		cookieName = "cp_device"
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			deviceID := normalizeDeviceID(r.Header.Get(DeviceIDHeader))
			if deviceID == "" {
				if c, err := r.Cookie(cookieName); err == nil {
					deviceID = normalizeDeviceID(c.Value)
				}
			}
			if deviceID == "" {
				deviceID = uuid.NewString()
				http.SetCookie(w, &http.Cookie{
					Name:     cookieName,
					Value:    deviceID,
					Path:     "/",
					MaxAge:   int(deviceCookieAge.Seconds()),
					HttpOnly: true,
					Secure:   secure,
					SameSite: http.SameSiteLaxMode,
				})
			}
			w.Header().Set(DeviceIDHeader, deviceID)

			ctx := WithDeviceID(r.Context(), deviceID)
			if logg != nil {
				ctx = logg.WithDeviceID(ctx, deviceID)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func normalizeDeviceID(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" || len(raw) > maxDeviceIDLen {
		return ""
	}
	for _, r := range raw {
		if !(r == '-' || r == '_' || (r >= '0' && r <= '9') || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')) {
			return ""
		}
	}
	return raw
}
