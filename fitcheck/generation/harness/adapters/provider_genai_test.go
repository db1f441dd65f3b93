package adapters

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"testing"

	"github.com/rwcarlsen/goexif/exif"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	ports "github.com/ZanzyTHEbar/fitcheck/fitcheck/generation/harness/ports"
)

const instructionSchema = `{
	"type": "object",
	"properties": {
		"instruction_to_agent": {"type": "string", "description": "what to do"}
	},
	"required": ["instruction_to_agent"]
}`

func TestToContents_MediaBeforeText(t *testing.T) {
	contents := toContents([]ports.PromptMessage{
		{Role: ports.RoleUser, Content: "hello"},
		{Role: ports.RoleModel, Content: "hi"},
		{Role: ports.RoleUser, Content: "look", Media: []ports.MediaRef{
			{URI: "files/img", MIMEType: "image/jpeg"},
			{URI: "files/aud", MIMEType: "audio/mpeg"},
		}},
		{Role: ports.RoleUser, Media: []ports.MediaRef{{URI: "files/only", MIMEType: "image/png"}}},
	})

	require.Len(t, contents, 4)
	assert.Equal(t, "user", contents[0].Role)
	assert.Equal(t, "model", contents[1].Role)

	parts := contents[2].Parts
	require.Len(t, parts, 3)
	assert.Equal(t, "files/img", parts[0].FileData.FileURI)
	assert.Equal(t, "audio/mpeg", parts[1].FileData.MIMEType)
	assert.Equal(t, "look", parts[2].Text)

	require.Len(t, contents[3].Parts, 1, "media-only turns carry no empty text part")
}

func TestToGenerateConfig(t *testing.T) {
	cfg, err := toGenerateConfig(ports.PromptInput{
		System:    "be a stylist",
		Tools:     []ports.ToolSpec{{Name: "environment", Description: "env", JSONSchema: []byte(instructionSchema)}},
		Grounding: true,
	}, ports.Options{Temperature: 0.5, MaxNewTokens: 600})
	require.NoError(t, err)

	assert.Equal(t, "be a stylist", cfg.SystemInstruction.Parts[0].Text)
	require.NotNil(t, cfg.Temperature)
	assert.InDelta(t, 0.5, *cfg.Temperature, 1e-6)
	assert.Equal(t, int32(600), cfg.MaxOutputTokens)

	require.Len(t, cfg.Tools, 2)
	decl := cfg.Tools[0].FunctionDeclarations[0]
	assert.Equal(t, "environment", decl.Name)
	assert.Equal(t, genai.TypeObject, decl.Parameters.Type)
	assert.Equal(t, genai.TypeString, decl.Parameters.Properties["instruction_to_agent"].Type)
	assert.Equal(t, []string{"instruction_to_agent"}, decl.Parameters.Required)
	assert.NotNil(t, cfg.Tools[1].GoogleSearch)
}

func TestToGenerateConfig_Defaults(t *testing.T) {
	cfg, err := toGenerateConfig(ports.PromptInput{}, ports.Options{})
	require.NoError(t, err)
	assert.Nil(t, cfg.SystemInstruction)
	assert.Nil(t, cfg.Temperature)
	assert.Empty(t, cfg.Tools)

	_, err = toGenerateConfig(ports.PromptInput{Tools: []ports.ToolSpec{{Name: "x", JSONSchema: []byte("{")}}}, ports.Options{})
	assert.Error(t, err)
}

func TestFromResponse(t *testing.T) {
	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{
			{
				Content: &genai.Content{Role: "model", Parts: []*genai.Part{
					{Text: "let me check", Thought: true},
					{Text: "Checking the weather."},
					{FunctionCall: &genai.FunctionCall{ID: "c1", Name: "environment", Args: map[string]any{"instruction_to_agent": "Cancun weather"}}},
				}},
				GroundingMetadata: &genai.GroundingMetadata{GroundingChunks: []*genai.GroundingChunk{
					{Web: &genai.GroundingChunkWeb{URI: "https://redirect.example/1"}},
					{},
				}},
			},
		},
		UsageMetadata: &genai.GenerateContentResponseUsageMetadata{PromptTokenCount: 10, CandidatesTokenCount: 5, TotalTokenCount: 15},
	}

	c, err := fromResponse(resp)
	require.NoError(t, err)
	assert.Equal(t, "Checking the weather.", c.Text())
	calls := c.ToolCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "environment", calls[0].Name)
	var args map[string]string
	require.NoError(t, json.Unmarshal(calls[0].Args, &args))
	assert.Equal(t, "Cancun weather", args["instruction_to_agent"])
	assert.Equal(t, []string{"https://redirect.example/1"}, c.GroundingSources)
	assert.Equal(t, 15, c.Usage.TotalTokens)

	_, err = fromResponse(nil)
	assert.Error(t, err)
}

func TestDetectMIMEAndDescribeImage(t *testing.T) {
	assert.Equal(t, "image/jpeg", DetectMIME("closet.JPEG", nil))
	assert.Equal(t, "audio/mpeg", DetectMIME("note.mp3", nil))
	assert.Equal(t, "image/png", DetectMIME("noext", []byte("\x89PNG\r\n\x1a\n0000")))
	assert.Equal(t, "", DescribeImage([]byte("not an image")))
}

// tiffWithGPS builds a little-endian TIFF carrying a camera model and a GPS
// position, which is all exif.Decode needs.
func tiffWithGPS() []byte {
	var b bytes.Buffer
	le := binary.LittleEndian
	u16 := func(v uint16) { _ = binary.Write(&b, le, v) }
	u32 := func(v uint32) { _ = binary.Write(&b, le, v) }
	entry := func(tag, typ uint16, count, value uint32) {
		u16(tag)
		u16(typ)
		u32(count)
		u32(value)
	}
	inline := func(s string) uint32 {
		var v [4]byte
		copy(v[:], s)
		return le.Uint32(v[:])
	}

	b.WriteString("II")
	u16(42)
	u32(8)

	// IFD0 at 8: Model, GPS pointer.
	u16(2)
	entry(0x0110, 2, 6, 38)
	entry(0x8825, 4, 1, 44)
	u32(0)
	b.WriteString("Pixel\x00")

	// GPS IFD at 44.
	u16(4)
	entry(0x0001, 2, 2, inline("N"))
	entry(0x0002, 5, 3, 98)
	entry(0x0003, 2, 2, inline("E"))
	entry(0x0004, 5, 3, 122)
	u32(0)
	for _, v := range []uint32{43, 1, 39, 1, 0, 1, 79, 1, 23, 1, 0, 1} {
		u32(v)
	}
	return b.Bytes()
}

func TestDescribeImage_OmitsLocation(t *testing.T) {
	data := tiffWithGPS()

	x, err := exif.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	_, _, err = x.LatLong()
	require.NoError(t, err, "fixture carries a GPS position")

	desc := DescribeImage(data)
	assert.Contains(t, desc, "camera Pixel")
	assert.NotContains(t, desc, "location")
	assert.NotContains(t, desc, "43.")
}
