package tournament

import "math"

// DefaultAnteSBRatio is the traditional ante as a fraction of the small blind.
const DefaultAnteSBRatio = 0.2

// BlindStructureRequest asks for a generated blind structure. Either Count (and
// IncreaseFactor) or DesiredDuration must be given; a desired duration derives
// both from the expected chips in play.
type BlindStructureRequest struct {
	Count               int      `json:"count,omitempty"`
	IncreaseFactor      float64  `json:"blind_increase_factor,omitempty"`
	LevelDuration       int64    `json:"level_duration"`
	ChipUpBreakDuration int64    `json:"chip_up_break_duration"`
	Antes               AnteType `json:"antes"`
	AnteSBRatio         float64  `json:"ante_sb_ratio,omitempty"`

	DesiredDuration int64 `json:"desired_duration,omitempty"`
	ExpectedBuyins  int   `json:"expected_buyins,omitempty"`
	ExpectedRebuys  int   `json:"expected_rebuys,omitempty"`
	ExpectedAddons  int   `json:"expected_addons,omitempty"`
}

// roundDenomination picks the chip a blind of size ideal is rounded to: the
// largest denomination whose next-lower neighbour is less than a tenth of ideal.
func roundDenomination(ideal float64, chips []Chip) int {
	const multiplier = 10
	for i := len(chips) - 1; i > 0; i-- {
		if ideal > float64(chips[i-1].Denomination*multiplier) {
			return chips[i].Denomination
		}
	}
	return chips[0].Denomination
}

func roundUp(ideal float64, denom int) int {
	return int(math.Ceil(ideal/float64(denom))) * denom
}

// GenerateBlindLevels produces count playing levels after the setup level.
// The small blind starts at the smallest chip and grows by factor each level,
// rounded up to a sensible chip. A chip-up break is added to every level where
// the rounding chip changes. chips must be sorted ascending.
func GenerateBlindLevels(count int, levelDuration, chipUpBreak int64, factor float64, antes AnteType, anteRatio float64, chips []Chip) ([]BlindLevel, error) {
	if len(chips) == 0 {
		return nil, newError(KindInfeasible, "no_chips", "tried to create a blind structure without chips defined")
	}
	if count < 1 {
		return nil, invalidArgument("blind level count must be positive, got %d", count)
	}
	if levelDuration <= 0 {
		return nil, invalidArgument("level duration must be positive, got %d", levelDuration)
	}
	if factor <= 1 {
		return nil, invalidArgument("blind increase factor must be greater than 1, got %g", factor)
	}
	if anteRatio <= 0 {
		anteRatio = DefaultAnteSBRatio
	}

	levels := make([]BlindLevel, count+1)
	lastDenom := chips[0].Denomination
	ideal := float64(lastDenom)

	for i := 1; i <= count; i++ {
		denom := roundDenomination(ideal, chips)
		little := roundUp(ideal, denom)

		ante := 0
		if antes != AnteNone {
			idealAnte := anteRatio * float64(little)
			if idealAnte >= float64(chips[0].Denomination) {
				switch antes {
				case AnteTraditional:
					ante = roundUp(idealAnte, roundDenomination(idealAnte, chips))
				case AnteBigBlind:
					ante = little * 2
				}
			}
		}

		levels[i] = BlindLevel{
			LittleBlind: little,
			BigBlind:    little * 2,
			Ante:        ante,
			AnteType:    antes,
			Duration:    levelDuration,
		}
		if denom != lastDenom {
			levels[i].BreakDuration = chipUpBreak
			levels[i].Reason = "Chip up"
		}

		ideal *= factor
		lastDenom = denom
	}
	return levels, nil
}

// GenerateBlindLevelsForDuration sizes a blind structure so the tournament
// should end after roughly the desired duration, when about ten big blinds
// remain in play. It derives the level count and increase factor and then
// defers to GenerateBlindLevels.
func GenerateBlindLevelsForDuration(req BlindStructureRequest, chips []Chip, funding *Funding, maxExpected int) ([]BlindLevel, error) {
	const (
		chipUpRate = 10
		bbAtEnd    = 10
	)

	if req.DesiredDuration <= 0 {
		return nil, invalidArgument("desired duration must be positive, got %d", req.DesiredDuration)
	}
	if req.LevelDuration <= 0 {
		return nil, invalidArgument("level duration must be positive, got %d", req.LevelDuration)
	}
	if len(chips) == 0 {
		return nil, newError(KindInfeasible, "no_chips", "tried to create a blind structure without chips defined")
	}

	buyins := req.ExpectedBuyins
	if buyins == 0 {
		buyins = maxExpected
	}

	inPlay := 0
	for _, want := range []struct {
		t     FundingType
		count int
	}{{Buyin, buyins}, {Rebuy, req.ExpectedRebuys}, {Addon, req.ExpectedAddons}} {
		if want.count <= 0 {
			continue
		}
		src, err := funding.SourceForType(want.t)
		if err != nil {
			return nil, err
		}
		source, _ := funding.Source(src)
		inPlay += source.Chips * want.count
	}
	if inPlay == 0 {
		return nil, invalidArgument("no expected chips in play")
	}

	rounds := req.DesiredDuration / (req.LevelDuration + req.ChipUpBreakDuration/chipUpRate)
	if rounds < 2 {
		return nil, invalidArgument("desired duration %d is too short for levels of %d", req.DesiredDuration, req.LevelDuration)
	}
	count := int(rounds + rounds/10 + 1)

	first := float64(chips[0].Denomination)
	last := float64(inPlay / (bbAtEnd * 2))
	factor := math.Pow(last/first, 1/float64(rounds-1))

	return GenerateBlindLevels(count, req.LevelDuration, req.ChipUpBreakDuration, factor, req.Antes, req.AnteSBRatio, chips)
}
