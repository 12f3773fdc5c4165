package rating

// 100-level practice tier, grouped into 5 bands of 20 levels.
const (
	MinTier  = 1
	MaxTier  = 100
	BandSize = 20

	CheckpointStep = 10 // within-band mastery checkpoints
)

// Band is one of the five named skill brackets.
type Band struct {
	Index int // 1..5
	Name  string
	Start int // first tier of the band
	End   int // last tier of the band

	// Operand ranges interpolated across the band for generated problems.
	StartMin, StartMax int
	EndMin, EndMax     int
}

var bands = [5]Band{
	{Index: 1, Name: "novice", Start: 1, End: 20, StartMin: 1, StartMax: 10, EndMin: 5, EndMax: 25},
	{Index: 2, Name: "apprentice", Start: 21, End: 40, StartMin: 5, StartMax: 25, EndMin: 10, EndMax: 50},
	{Index: 3, Name: "adept", Start: 41, End: 60, StartMin: 10, StartMax: 50, EndMin: 20, EndMax: 100},
	{Index: 4, Name: "expert", Start: 61, End: 80, StartMin: 20, StartMax: 100, EndMin: 50, EndMax: 250},
	{Index: 5, Name: "master", Start: 81, End: 100, StartMin: 50, StartMax: 250, EndMin: 100, EndMax: 999},
}

// ClampTier clamps a tier to [1,100].
func ClampTier(t int) int {
	if t < MinTier {
		return MinTier
	}
	if t > MaxTier {
		return MaxTier
	}
	return t
}

// BandFor returns the band owning the (clamped) tier.
func BandFor(tier int) Band {
	tier = ClampTier(tier)
	return bands[(tier-1)/BandSize]
}

// OperandRange linearly interpolates the band's operand bounds by progress
// within the band.
func OperandRange(tier int) (min, max int) {
	tier = ClampTier(tier)
	b := BandFor(tier)
	progress := float64(tier-b.Start) / float64(b.End-b.Start)
	min = b.StartMin + int(progress*float64(b.EndMin-b.StartMin))
	max = b.StartMax + int(progress*float64(b.EndMax-b.StartMax))
	return min, max
}

// AdvanceLevels grades a finished session: 0-3 levels by escalating
// accuracy+streak thresholds.
func AdvanceLevels(accuracy float64, bestStreak int) int {
	switch {
	case accuracy >= 0.95 && bestStreak >= 8:
		return 3
	case accuracy >= 0.85 && bestStreak >= 5:
		return 2
	case accuracy >= 0.70:
		return 1
	default:
		return 0
	}
}

// NextCheckpoint is the first mastery gate strictly above tier: multiples of
// 10, with band boundaries (multiples of 20) being the stricter gate.
func NextCheckpoint(tier int) int {
	tier = ClampTier(tier)
	next := (tier/CheckpointStep + 1) * CheckpointStep
	if next > MaxTier {
		return MaxTier
	}
	return next
}

// AdvanceTier applies AdvanceLevels but never crosses a mastery checkpoint.
// Crossing requires passing the checkpoint's mastery test first.
func AdvanceTier(tier int, accuracy float64, bestStreak int) int {
	tier = ClampTier(tier)
	target := tier + AdvanceLevels(accuracy, bestStreak)
	if cp := NextCheckpoint(tier); target > cp {
		target = cp
	}
	return ClampTier(target)
}

// MasteryRequirement returns the test required to cross a checkpoint tier:
// 5 questions at 80% for within-band checkpoints, 10 at 90% at band
// boundaries. ok is false when the tier is not a checkpoint.
func MasteryRequirement(checkpoint int) (questions int, accuracy float64, ok bool) {
	if checkpoint <= 0 || checkpoint%CheckpointStep != 0 {
		return 0, 0, false
	}
	if checkpoint%BandSize == 0 {
		return 10, 0.90, true
	}
	return 5, 0.80, true
}

// PassesMastery reports whether a mastery attempt clears the checkpoint.
func PassesMastery(checkpoint, correct, total int) bool {
	q, acc, ok := MasteryRequirement(checkpoint)
	if !ok || total < q {
		return false
	}
	return float64(correct)/float64(total) >= acc
}
