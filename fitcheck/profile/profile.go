// Package profile loads a user's onboarding preferences and renders them as
// the profile context handed to the agents.
package profile

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ZanzyTHEbar/fitcheck/fitcheck"
)

// ErrMalformed is returned when a preferences file exists but cannot be decoded.
var ErrMalformed = errors.New("malformed preferences")

// Preferences mirrors preferences.json.
type Preferences struct {
	UserID       string       `json:"user_id"`
	Name         string       `json:"name"`
	Age          flexText     `json:"age"`
	Gender       string       `json:"gender"`
	Location     string       `json:"location"`
	Onboarding   Onboarding   `json:"onboarding_responses"`
	StyleProfile StyleProfile `json:"style_profile"`
}

type Onboarding struct {
	FavoriteColors     []string  `json:"favorite_colors"`
	DominantColors     []string  `json:"dominant_colors"`
	PreferredMaterials []string  `json:"preferred_materials"`
	PreferredPatterns  []string  `json:"preferred_patterns"`
	StylePreferences   []string  `json:"style_preferences"`
	FashionInfluences  flexText  `json:"fashion_influences"`
	WardrobeChallenges flexText  `json:"wardrobe_challenges"`
	Budget             flexText  `json:"budget"`
	Lifestyle          Lifestyle `json:"lifestyle"`
}

type Lifestyle struct {
	Work    flexText `json:"work"`
	Social  flexText `json:"social"`
	Climate flexText `json:"climate"`
}

// StyleProfile holds the percentage split and variability scores.
type StyleProfile struct {
	Casual             flexText `json:"casual"`
	Formal             flexText `json:"formal"`
	Active             flexText `json:"active"`
	PatternVariability flexText `json:"pattern_variability"`
	MaterialVariety    flexText `json:"material_variety"`
}

// flexText accepts a string, a number, or a list of strings.
type flexText string

func (f *flexText) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*f = flexText(s)
		return nil
	}
	var list []string
	if err := json.Unmarshal(b, &list); err == nil {
		*f = flexText(strings.Join(list, ", "))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err == nil {
		*f = flexText(n.String())
		return nil
	}
	return fmt.Errorf("unsupported value %s", b)
}

// Load reads <root>/<user>/preferences.json. A missing file yields nil
// preferences and no error.
func Load(root, userID string) (*Preferences, error) {
	dir, err := fitcheck.UserDir(root, userID)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(dir, fitcheck.PreferencesFile))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read preferences: %w", err)
	}
	return Parse(data)
}

// Parse decodes a preferences document.
func Parse(data []byte) (*Preferences, error) {
	var p Preferences
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return &p, nil
}

// Render returns the profile context string. A nil profile renders empty.
func (p *Preferences) Render() string {
	if p == nil {
		return ""
	}
	o := p.Onboarding
	var b strings.Builder
	fmt.Fprintf(&b, "User Profile:\n")
	fmt.Fprintf(&b, "    User ID: %s\n", p.UserID)
	fmt.Fprintf(&b, "    Name: %s, Age: %s, Gender: %s\n", p.Name, p.Age, p.Gender)
	fmt.Fprintf(&b, "    Location: %s\n\n", p.Location)
	fmt.Fprintf(&b, "    Onboarding Responses:\n")
	fmt.Fprintf(&b, "        Favorite Colors: %s\n", strings.Join(o.FavoriteColors, ", "))
	fmt.Fprintf(&b, "        Dominant Colors: %s\n", strings.Join(o.DominantColors, ", "))
	fmt.Fprintf(&b, "        Preferred Materials: %s\n", strings.Join(o.PreferredMaterials, ", "))
	fmt.Fprintf(&b, "        Preferred Patterns: %s\n", strings.Join(o.PreferredPatterns, ", "))
	fmt.Fprintf(&b, "        Style Preferences: %s\n", strings.Join(o.StylePreferences, ", "))
	fmt.Fprintf(&b, "        Fashion Influences: %s\n", o.FashionInfluences)
	fmt.Fprintf(&b, "        Wardrobe Challenges: %s\n", o.WardrobeChallenges)
	fmt.Fprintf(&b, "        Budget: %s\n", o.Budget)
	fmt.Fprintf(&b, "        Lifestyle:\n")
	fmt.Fprintf(&b, "            Work: %s\n", o.Lifestyle.Work)
	fmt.Fprintf(&b, "            Social: %s\n", o.Lifestyle.Social)
	fmt.Fprintf(&b, "            Climate: %s\n\n", o.Lifestyle.Climate)
	fmt.Fprintf(&b, "    Style Profile:\n")
	fmt.Fprintf(&b, "        Casual: %s%%\n", p.StyleProfile.Casual)
	fmt.Fprintf(&b, "        Formal: %s%%\n", p.StyleProfile.Formal)
	fmt.Fprintf(&b, "        Active: %s%%\n", p.StyleProfile.Active)
	fmt.Fprintf(&b, "        Pattern Variability: %s\n", p.StyleProfile.PatternVariability)
	fmt.Fprintf(&b, "        Material Variety: %s", p.StyleProfile.MaterialVariety)
	return b.String()
}
