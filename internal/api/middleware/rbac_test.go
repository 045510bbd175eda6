package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestRequirePermission(t *testing.T) {
	t.Parallel()

	gin.SetMode(gin.TestMode)

	run := func(perms interface{}, required string) (int, bool) {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request = httptest.NewRequest(http.MethodPost, "/", nil)
		if perms != nil {
			c.Set("permissions", perms)
		}

		called := false
		RequirePermission(required)(c)
		if !c.IsAborted() {
			called = true
		}
		return w.Code, called
	}

	tests := []struct {
		name       string
		perms      interface{}
		wantStatus int
		wantCalled bool
	}{
		{"platform admin bypasses required permission", []string{PermissionPlatformAdmin}, http.StatusOK, true},
		{"specific permission allowed", []string{PermissionBroadcast}, http.StatusOK, true},
		{"missing permission forbidden", []string{"feeds:read"}, http.StatusForbidden, false},
		{"no permissions in context", nil, http.StatusForbidden, false},
		{"wrong type", "platform:admin", http.StatusForbidden, false},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			status, called := run(tc.perms, PermissionBroadcast)
			if status != tc.wantStatus {
				t.Fatalf("status = %d, want %d", status, tc.wantStatus)
			}
			if called != tc.wantCalled {
				t.Fatalf("called = %v, want %v", called, tc.wantCalled)
			}
		})
	}
}
