package profile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const samplePreferences = `{
  "user_id": "u1",
  "name": "Ada",
  "age": 29,
  "gender": "female",
  "location": "Toronto",
  "onboarding_responses": {
    "favorite_colors": ["olive", "cream"],
    "dominant_colors": ["navy"],
    "preferred_materials": ["linen", "cotton"],
    "preferred_patterns": ["stripes"],
    "style_preferences": ["minimal", "smart casual"],
    "fashion_influences": ["Phoebe Philo", "street style"],
    "wardrobe_challenges": "Too many basics",
    "budget": "mid-range",
    "lifestyle": {"work": "office", "social": "dinners", "climate": "four seasons"}
  },
  "style_profile": {"casual": 60, "formal": 30, "active": 10, "pattern_variability": "low", "material_variety": 3}
}`

func writePrefs(t *testing.T, root, user, body string) {
	t.Helper()
	dir := filepath.Join(root, user)
	require.NoError(t, os.MkdirAll(dir, 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "preferences.json"), []byte(body), 0o600))
}

func TestLoadAndRender(t *testing.T) {
	root := t.TempDir()
	writePrefs(t, root, "u1", samplePreferences)

	prefs, err := Load(root, "u1")
	require.NoError(t, err)
	require.NotNil(t, prefs)

	out := prefs.Render()
	assert.Contains(t, out, "User Profile:")
	assert.Contains(t, out, "Name: Ada, Age: 29, Gender: female")
	assert.Contains(t, out, "Favorite Colors: olive, cream")
	assert.Contains(t, out, "Fashion Influences: Phoebe Philo, street style")
	assert.Contains(t, out, "Climate: four seasons")
	assert.Contains(t, out, "Casual: 60%")
	assert.Contains(t, out, "Material Variety: 3")
}

func TestLoad_MissingIsEmpty(t *testing.T) {
	prefs, err := Load(t.TempDir(), "nobody")
	require.NoError(t, err)
	assert.Nil(t, prefs)
	assert.Equal(t, "", prefs.Render())
}

func TestLoad_Malformed(t *testing.T) {
	root := t.TempDir()
	writePrefs(t, root, "u1", `{"name": ["not", {"a": "string"}]`)

	_, err := Load(root, "u1")
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestLoad_RejectsBadUserID(t *testing.T) {
	_, err := Load(t.TempDir(), "../etc")
	assert.Error(t, err)
}

func TestParse_PartialDocument(t *testing.T) {
	prefs, err := Parse([]byte(`{"name":"Bo","age":"thirty"}`))
	require.NoError(t, err)
	out := prefs.Render()
	assert.Contains(t, out, "Name: Bo, Age: thirty")
	assert.Contains(t, out, "Favorite Colors: \n")
}
