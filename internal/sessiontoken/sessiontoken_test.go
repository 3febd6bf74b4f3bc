package sessiontoken

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "peopleflow/pkg/domain"
	dErrors "peopleflow/pkg/domain-errors"
)

func TestIssueAndValidate(t *testing.T) {
	manager := NewManager("test-signing-key", time.Hour)
	userID := id.NewUserID()
	tenantID := id.NewTenantID()

	t.Run("round trip preserves the caller", func(t *testing.T) {
		token, err := manager.Issue(userID, tenantID, "tenant_user", true)
		require.NoError(t, err)

		caller, err := manager.Validate(token)
		require.NoError(t, err)
		assert.Equal(t, userID.String(), caller.UserID)
		assert.Equal(t, tenantID.String(), caller.TenantID)
		assert.Equal(t, "tenant_user", caller.Role)
		assert.True(t, caller.Elevated)
	})

	t.Run("operator tokens carry no tenant", func(t *testing.T) {
		token, err := manager.Issue(userID, id.TenantID{}, "operator", false)
		require.NoError(t, err)

		caller, err := manager.Validate(token)
		require.NoError(t, err)
		assert.Empty(t, caller.TenantID)
		assert.Equal(t, "operator", caller.Role)
	})

	t.Run("rejects tokens signed with another key", func(t *testing.T) {
		other := NewManager("different-key", time.Hour)
		token, err := other.Issue(userID, tenantID, "tenant_user", false)
		require.NoError(t, err)

		_, err = manager.Validate(token)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	t.Run("rejects expired tokens", func(t *testing.T) {
		expired := NewManager("test-signing-key", -time.Minute)
		token, err := expired.Issue(userID, tenantID, "tenant_user", false)
		require.NoError(t, err)

		_, err = manager.Validate(token)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
		assert.Contains(t, dErrors.MessageOf(err), "expired")
	})

	t.Run("rejects garbage", func(t *testing.T) {
		_, err := manager.Validate("not-a-token")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})
}
