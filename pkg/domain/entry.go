package domain

import "time"

// Names of the graph manager entry points every remote core exports.
const (
	FnManagerInit   = "KernelGraphManagerInit"
	FnManagerDeinit = "KernelGraphManagerDeinit"
	FnManagerExec   = "KernelGraphManager"
	FnManagerStats  = "KernelGraphManagerStats"
)

// EntryPoint is a remote function as advertised by its core.
type EntryPoint struct {
	Name  string `json:"name"`
	Index int    `json:"index"`
	// Load is the weight the function charges its core, in MHz.
	Load uint32 `json:"load"`
}

// ManagerVersion is the graph manager protocol version spoken by this build.
// Init fails with StatusVersionMismatch when the two sides differ.
const ManagerVersion uint32 = 0x0002_0000

// CoreStatsSize is the wire size of a CoreStats record.
const CoreStatsSize = 24

// CoreStats is the activity record returned by the stats entry point.
type CoreStats struct {
	Calls uint64        `json:"calls"`
	Nodes uint64        `json:"nodes"`
	Busy  time.Duration `json:"busy"`
}

// Encode writes s into b, which must hold CoreStatsSize bytes.
func (s CoreStats) Encode(b []byte) {
	le.PutUint64(b[0:], s.Calls)
	le.PutUint64(b[8:], s.Nodes)
	le.PutUint64(b[16:], uint64(s.Busy))
}

// DecodeCoreStats parses a stats record. Short input yields a zero record.
func DecodeCoreStats(b []byte) CoreStats {
	if len(b) < CoreStatsSize {
		return CoreStats{}
	}
	return CoreStats{
		Calls: le.Uint64(b[0:]),
		Nodes: le.Uint64(b[8:]),
		Busy:  time.Duration(le.Uint64(b[16:])),
	}
}
