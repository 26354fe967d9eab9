package records

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/organlink/platform/pkg/common/models"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupPolicyCache(t *testing.T, ttl time.Duration) (*miniredis.Miniredis, *PolicyCache) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, NewPolicyCache(client, ttl)
}

func TestPolicyCache_MissThenHit(t *testing.T) {
	_, cache := setupPolicyCache(t, time.Minute)
	ctx := context.Background()

	_, ok, err := cache.Get(ctx, "kidney")
	require.NoError(t, err)
	assert.False(t, ok)

	policies := []models.Policy{
		{ID: "p1", OrganType: "kidney", Status: models.PolicyImplemented, Rules: `{"age_priority": 18}`},
	}
	require.NoError(t, cache.Set(ctx, "kidney", policies))

	got, ok, err := cache.Get(ctx, "kidney")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, policies, got)
}

func TestPolicyCache_EmptyListIsAHit(t *testing.T) {
	_, cache := setupPolicyCache(t, time.Minute)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "heart", nil))
	got, ok, err := cache.Get(ctx, "heart")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, got)
}

func TestPolicyCache_ExpiresAfterTTL(t *testing.T) {
	mr, cache := setupPolicyCache(t, 30*time.Second)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "liver", []models.Policy{{ID: "p2", OrganType: "liver"}}))
	mr.FastForward(31 * time.Second)

	_, ok, err := cache.Get(ctx, "liver")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPolicyCache_Invalidate(t *testing.T) {
	mr, cache := setupPolicyCache(t, time.Minute)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "kidney", []models.Policy{{ID: "p1"}}))
	require.NoError(t, cache.Set(ctx, "liver", []models.Policy{{ID: "p2"}}))
	require.NoError(t, cache.Invalidate(ctx, "kidney"))

	assert.False(t, mr.Exists(policyKey("kidney")))
	assert.True(t, mr.Exists(policyKey("liver")))
	assert.NoError(t, cache.Invalidate(ctx))
}

func TestPolicyCache_CorruptEntry(t *testing.T) {
	mr, cache := setupPolicyCache(t, time.Minute)
	require.NoError(t, mr.Set(policyKey("kidney"), "not json"))

	_, ok, err := cache.Get(context.Background(), "kidney")
	assert.Error(t, err)
	assert.False(t, ok)
}

const validFixtures = `
hospitals:
  - id: h1
    name: General
    city: Chennai
    admin_user_id: admin-1
donors:
  - id: d1
    blood_type: O-
    organs: [kidney]
    hospital_id: h1
    date_of_birth: 1980-05-01
patients:
  - id: p1
    blood_type: A+
    organ_needed: kidney
    urgency: high
    hospital_id: h1
    waiting_since: 2024-01-01
policies:
  - id: pol1
    organ_type: kidney
    status: IMPLEMENTED
    rules: '{"age_priority": 18}'
  - id: pol2
    organ_type: liver
    rules: '{}'
`

func TestParseFixtures_AppliesDefaults(t *testing.T) {
	f, err := ParseFixtures([]byte(validFixtures))
	require.NoError(t, err)

	require.Len(t, f.Donors, 1)
	assert.Equal(t, models.AvailabilityAvailable, f.Donors[0].Availability)
	assert.Equal(t, []string{"kidney"}, f.Donors[0].Organs)
	assert.Equal(t, 1980, f.Donors[0].DateOfBirth.Year())

	require.Len(t, f.Patients, 1)
	assert.Equal(t, models.PatientWaiting, f.Patients[0].Status)
	assert.Equal(t, 3, f.Patients[0].Urgency.Rank())

	assert.Equal(t, models.PolicyDraft, f.Policies[1].Status)
	assert.Equal(t, []string{"kidney", "liver"}, f.PolicyOrgans())
}

func TestParseFixtures_RejectsBrokenReferences(t *testing.T) {
	doc := `
hospitals:
  - id: h1
donors:
  - id: d1
    organs: [kidney]
    hospital_id: h9
patients:
  - id: p1
    organ_needed: kidney
    urgency: SOMEDAY
    hospital_id: h1
`
	_, err := ParseFixtures([]byte(doc))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidFixtures))
	assert.Contains(t, err.Error(), "unknown hospital")
	assert.Contains(t, err.Error(), "unknown urgency")
}

func TestParseFixtures_RejectsMalformedYAML(t *testing.T) {
	_, err := ParseFixtures([]byte("hospitals: [unterminated"))
	assert.ErrorIs(t, err, ErrInvalidFixtures)
}

func TestLoadFixtures_SampleSeedFile(t *testing.T) {
	_, file, _, _ := runtime.Caller(0)
	path := filepath.Join(filepath.Dir(file), "..", "..", "fixtures", "seed.yaml")
	if _, err := os.Stat(path); err != nil {
		t.Skip("sample fixtures not present")
	}
	f, err := LoadFixtures(path)
	require.NoError(t, err)
	assert.NotEmpty(t, f.Hospitals)
	assert.NotEmpty(t, f.Donors)
	assert.NotEmpty(t, f.Patients)
}
