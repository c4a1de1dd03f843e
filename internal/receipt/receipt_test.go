package receipt

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleReceipt() *Receipt {
	return &Receipt{
		SchemaVersion:           SchemaVersion,
		EmittedAt:               time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC),
		SpecID:                  "widget-api",
		Phase:                   "design",
		XcheckerVersion:         "0.1.0",
		Runner:                  "native",
		CanonicalizationBackend: CanonicalizationBackend,
		CanonicalizationVersion: "yaml-v1,md-v1",
		Flags:                   map[string]string{"apply_fixups": "false"},
		Packet: PacketEvidence{
			Files: []PacketFile{
				{Path: "zz.md", Priority: "low", BLAKE3PreRedaction: "aa"},
				{Path: "aa.md", Priority: "upstream", BLAKE3PreRedaction: "bb"},
			},
			PostRedactionHash: "cc",
		},
		Outputs: []Output{
			{Path: "02-design.md", BLAKE3First8: "12345678"},
			{Path: "02-design.core.yaml", BLAKE3First8: "87654321"},
		},
		ExitCode: 0,
	}
}

func TestMarshal_ByteIdenticalOnReemission(t *testing.T) {
	r := sampleReceipt()
	b1, err := Marshal(r)
	require.NoError(t, err)

	r2 := sampleReceipt()
	b2, err := Marshal(r2)
	require.NoError(t, err)

	assert.Equal(t, b1, b2)
}

func TestMarshal_RoundTripsWithoutFieldDrift(t *testing.T) {
	r := sampleReceipt()
	b, err := Marshal(r)
	require.NoError(t, err)

	var got Receipt
	require.NoError(t, json.Unmarshal(b, &got))

	if diff := cmp.Diff(*r, got); diff != "" {
		t.Fatalf("receipt round-trip mismatch (-want +got):\n%s", diff)
	}
}

func TestNormalize_SortsOutputsAndPacketFilesByPath(t *testing.T) {
	r := sampleReceipt()
	r.Normalize()
	assert.Equal(t, "02-design.core.yaml", r.Outputs[0].Path)
	assert.Equal(t, "02-design.md", r.Outputs[1].Path)
	assert.Equal(t, "aa.md", r.Packet.Files[0].Path)
	assert.Equal(t, "zz.md", r.Packet.Files[1].Path)
}

func TestValidate_RejectsSuccessWithErrorKind(t *testing.T) {
	r := sampleReceipt()
	r.ExitCode = 0
	r.ErrorKind = ErrorKindBackendFailure
	err := r.Validate()
	require.Error(t, err)
}

func TestValidate_AllowsFailureWithErrorKind(t *testing.T) {
	r := sampleReceipt()
	r.ExitCode = 70
	r.ErrorKind = ErrorKindBackendFailure
	require.NoError(t, r.Validate())
}

func TestWrite_PersistsToReceiptsDir(t *testing.T) {
	dir := t.TempDir()
	r := sampleReceipt()
	path, err := Write(dir, r)
	require.NoError(t, err)
	assert.FileExists(t, path)
	assert.Contains(t, path, "design-20260730T120000Z.json")
}
