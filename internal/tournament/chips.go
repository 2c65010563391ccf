package tournament

// targetStackCount is how many chips of each lower denomination a starting
// stack aims for before larger chips stop being broken down.
const targetStackCount = 8

// MaxChipsFor is the most chips of one denomination every expected player can
// receive from the chip set.
func MaxChipsFor(chip Chip, players int) int {
	if players <= 0 {
		return 0
	}
	return chip.CountAvailable / players
}

// ChipsForBuyin decomposes a starting stack of chips into the available
// denominations. chips must be sorted ascending by denomination.
//
// The first pass takes as many of each denomination as fit, highest first,
// never exceeding MaxChipsFor. The second pass breaks single higher chips
// into lower ones while a lower stack has fewer than eight chips, so stacks
// stay playable without changing their value. Results are ascending by
// denomination and omit empty denominations.
func ChipsForBuyin(stack int, chips []Chip, levels []BlindLevel, maxExpected int) ([]PlayerChips, error) {
	if maxExpected <= 0 {
		return nil, invalidArgument("expected players must be positive, got %d", maxExpected)
	}
	if len(levels) < 2 {
		return nil, wrap(ErrInvalidState, "blind levels must be defined before calculating chips")
	}
	if len(chips) == 0 {
		return nil, newError(KindInfeasible, "no_chips", "no chips defined")
	}
	if chips[0].Denomination > levels[1].LittleBlind {
		return nil, wrap(ErrInfeasibleDenomination, "smallest chip %d is larger than the smallest little blind %d", chips[0].Denomination, levels[1].LittleBlind)
	}

	counts := make([]int, len(chips))
	caps := make([]int, len(chips))
	for i, c := range chips {
		caps[i] = MaxChipsFor(c, maxExpected)
	}

	remain := stack
	for i := len(chips) - 1; i >= 0 && remain > 0; i-- {
		d := chips[i].Denomination
		if d <= 0 || d > remain {
			continue
		}
		n := min(remain/d, caps[i])
		counts[i] += n
		remain -= n * d
	}
	if remain != 0 {
		return nil, wrap(ErrInfeasibleDenomination, "%d left over after decomposing %d", remain, stack)
	}

	for moved := true; moved; {
		moved = false
		for hi := len(chips) - 1; hi > 0; hi-- {
			lo := hi - 1
			dh, dl := chips[hi].Denomination, chips[lo].Denomination
			if dl <= 0 || dh%dl != 0 {
				continue
			}
			per := dh / dl
			for counts[hi] > 0 && counts[lo] < targetStackCount && counts[lo]+per <= caps[lo] {
				counts[hi]--
				counts[lo] += per
				moved = true
			}
		}
	}

	out := make([]PlayerChips, 0, len(chips))
	for i, c := range chips {
		if counts[i] > 0 {
			out = append(out, PlayerChips{Denomination: c.Denomination, Chips: counts[i]})
		}
	}
	return out, nil
}
