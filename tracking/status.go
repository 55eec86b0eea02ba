package tracking

// Status is the discrete daily tracking status of a watched stock relative
// to its planned levels. Derived fresh every day; never persisted as the
// source of truth for simulation state.
type Status string

const (
	StatusStoppedOut  Status = "STOPPED_OUT"
	StatusTarget2Hit  Status = "TARGET2_HIT"
	StatusTarget1Hit  Status = "TARGET1_HIT"
	StatusEntryZone   Status = "ENTRY_ZONE"
	StatusRetestZone  Status = "RETEST_ZONE"
	StatusAboveEntry  Status = "ABOVE_ENTRY"
	StatusApproaching Status = "APPROACHING"
	StatusWatching    Status = "WATCHING"
)

// Flag is an advisory annotation. Flags are independent and additive; they
// never replace the status.
type Flag string

const (
	FlagRSIDanger        Flag = "RSI_DANGER"
	FlagRSIExit          Flag = "RSI_EXIT"
	FlagVolumeSpike      Flag = "VOLUME_SPIKE"
	FlagApproachingEntry Flag = "APPROACHING_ENTRY"
	FlagGapDown          Flag = "GAP_DOWN"
)
