// Package genesis maintains the chain parameters and consensus constants
// for the networks the node can join.
package genesis

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/holiman/uint256"
)

// Monetary units. All amounts move through the system in these base units.
const (
	Coin = 1_000_000
	Cent = 10_000
)

// Consensus constants shared by every network.
const (
	MaxBlockSize      = 1_000_000
	MaxBlockSigOps    = MaxBlockSize / 50
	MaxMoney          = 250_000_000 * Coin
	MinTxFee          = Cent
	MinRelayTxFee     = Cent
	MinTxOutAmount    = MinTxFee
	MaxClockDrift     = 2 * 60 * 60
	LockTimeThreshold = 500_000_000
	MaxLockTime       = 0x7FFF_FFFF

	// MedianTimeSpan is the number of prior blocks the median-time-past
	// rule looks at.
	MedianTimeSpan = 11
)

// Orphan and relay limits.
const (
	DefaultMaxOrphanBlocks = 750
	MaxOrphanTransactions  = 10_000
	MaxOrphanTxSize        = 5_000

	// Free transactions are admitted against an exponentially decaying
	// byte counter with this cap. FreeRelayHalfLifeSecs is the decay time
	// constant: over that many seconds the counter shrinks by a factor of e.
	FreeRelayLimitBytes   = 15_000
	FreeRelayHalfLifeSecs = 600
	MaxStandardSigScript  = 500
	MaxCoinbaseScriptSize = 100
	MinCoinbaseScriptSize = 2
)

// Protocol switch times. Blocks are judged against the rule set that was
// active at their timestamp.
const (
	SwitchV05Time                  = 1_407_110_400
	PoBPoSTargetSwitchTime         = 1_407_110_400
	ChainChecksSwitchTime          = 1_407_110_400
	BurnRoundDownTime              = 1_402_314_985
	BurnHashIntermediateSwitchTime = 1_403_247_483
	P2SHStrictTime                 = 1_333_238_400
	UniqueTxIDSwitchTime           = 1_331_769_600
)

// Burn engine constants.
const (
	BurnMinConfirms = 6

	// Effective burn coins decay by Num/Den at every PoW block.
	BurnDecayNumerator   = 100_000_198
	BurnDecayDenominator = 100_000_000

	// BurnHarderTarget only participates in the legacy pre-switch burn
	// retarget kept for historical chain validation.
	BurnHarderTarget = 4
)

// Retarget constants.
const (
	RetargetTimespanBlock = 4258
	RetargetTimespanEarly = 30 * 60
	RetargetTimespanLate  = 6 * 60 * 60
	BurnRetargetInterval  = 3
	BurnRetargetTimespan  = 30
	PoWSpacingRelaxFactor = 10
)

// =============================================================================

// Params represents the tunable parameters of one network. The target
// limits are derived from the shift fields at load time.
type Params struct {
	Name         string  `json:"name" validate:"required"`
	NetMagic     [4]byte `json:"-"`
	NetMagicHex  string  `json:"net_magic" validate:"required,len=8,hexadecimal"`
	GenesisTime  uint32  `json:"genesis_time" validate:"required"`
	GenesisNonce uint32  `json:"genesis_nonce"`

	StakeTargetSpacing uint32 `json:"stake_target_spacing" validate:"required"`
	StakeMinAge        uint32 `json:"stake_min_age" validate:"required"`
	CoinbaseMaturity   int32  `json:"coinbase_maturity" validate:"required"`

	BurnMinConfirms int32 `json:"burn_min_confirms" validate:"required"`
	BurnHashDouble  int64 `json:"burn_hash_double" validate:"required"`
	BurnConstant    int64 `json:"burn_constant" validate:"required"`

	MaxMintPoW int64 `json:"max_mint_pow" validate:"required"`
	MaxMintPoB int64 `json:"max_mint_pob" validate:"required"`

	WorkLimitShift     uint `json:"work_limit_shift" validate:"required"`
	StakeLimitShift    uint `json:"stake_limit_shift" validate:"required"`
	StakeLimitShiftV2  uint `json:"stake_limit_shift_v2" validate:"required"`
	BurnLimitShift     uint `json:"burn_limit_shift" validate:"required"`
	InitialTargetShift uint `json:"initial_target_shift" validate:"required"`

	// Hardened checkpoints: height to block hash in display form. Blocks
	// at or below the highest entry skip signature checks.
	Checkpoints map[int32]string `json:"checkpoints"`

	workLimit     *uint256.Int
	stakeLimit    *uint256.Int
	stakeLimitV2  *uint256.Int
	burnLimit     *uint256.Int
	initialTarget *uint256.Int
}

// Mainnet returns the production network parameters.
func Mainnet() Params {
	p := Params{
		Name:         "mainnet",
		NetMagic:     [4]byte{0x6e, 0x8b, 0x92, 0xa5},
		NetMagicHex:  "6e8b92a5",
		GenesisTime:  1_369_640_000,
		GenesisNonce: 38_624_014,

		StakeTargetSpacing: 90,
		StakeMinAge:        60 * 60 * 24 * 90,
		CoinbaseMaturity:   500,

		BurnMinConfirms: BurnMinConfirms,
		BurnHashDouble:  350,
		BurnConstant:    Cent,

		MaxMintPoW: 50 * Coin,
		MaxMintPoB: 25 * Coin,

		WorkLimitShift:     20,
		StakeLimitShift:    24,
		StakeLimitShiftV2:  20,
		BurnLimitShift:     20,
		InitialTargetShift: 28,
	}
	p.DeriveLimits()
	return p
}

// Testnet returns the test network parameters. Maturity and stake age are
// short so chains can be exercised quickly.
func Testnet() Params {
	p := Params{
		Name:         "testnet",
		NetMagic:     [4]byte{0xcd, 0xf2, 0xc0, 0xef},
		NetMagicHex:  "cdf2c0ef",
		GenesisTime:  1_390_500_425,
		GenesisNonce: 63_626,

		StakeTargetSpacing: 90,
		StakeMinAge:        60 * 60 * 24,
		CoinbaseMaturity:   60,

		BurnMinConfirms: BurnMinConfirms,
		BurnHashDouble:  350,
		BurnConstant:    Cent,

		MaxMintPoW: 50 * Coin,
		MaxMintPoB: 25 * Coin,

		WorkLimitShift:     28,
		StakeLimitShift:    28,
		StakeLimitShiftV2:  28,
		BurnLimitShift:     28,
		InitialTargetShift: 29,
	}
	p.DeriveLimits()
	return p
}

// Load opens and consumes a parameters file, validating the required
// fields before the limits are derived.
func Load(path string) (Params, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return Params{}, err
	}

	var p Params
	if err := json.Unmarshal(content, &p); err != nil {
		return Params{}, err
	}

	if err := validator.New().Struct(p); err != nil {
		return Params{}, fmt.Errorf("validating chain parameters: %w", err)
	}

	if _, err := fmt.Sscanf(p.NetMagicHex, "%02x%02x%02x%02x", &p.NetMagic[0], &p.NetMagic[1], &p.NetMagic[2], &p.NetMagic[3]); err != nil {
		return Params{}, fmt.Errorf("parsing net magic: %w", err)
	}

	p.DeriveLimits()
	return p, nil
}

// DeriveLimits expands the shift fields into full 256-bit limits. Any
// hand-built Params value must call it before use.
func (p *Params) DeriveLimits() {
	max := new(uint256.Int).Not(new(uint256.Int))
	p.workLimit = new(uint256.Int).Rsh(max, p.WorkLimitShift)
	p.stakeLimit = new(uint256.Int).Rsh(max, p.StakeLimitShift)
	p.stakeLimitV2 = new(uint256.Int).Rsh(max, p.StakeLimitShiftV2)
	p.burnLimit = new(uint256.Int).Rsh(max, p.BurnLimitShift)
	p.initialTarget = new(uint256.Int).Rsh(max, p.InitialTargetShift)
}

// WorkLimit returns the easiest allowed proof-of-work target.
func (p Params) WorkLimit() *uint256.Int {
	return new(uint256.Int).Set(p.workLimit)
}

// StakeLimit returns the easiest allowed proof-of-stake target for a block
// at the specified time. The limit was widened at the PoB/PoS switch.
func (p Params) StakeLimit(blockTime uint32) *uint256.Int {
	if blockTime >= PoBPoSTargetSwitchTime {
		return new(uint256.Int).Set(p.stakeLimitV2)
	}
	return new(uint256.Int).Set(p.stakeLimit)
}

// BurnLimit returns the easiest allowed proof-of-burn target.
func (p Params) BurnLimit() *uint256.Int {
	return new(uint256.Int).Set(p.burnLimit)
}

// InitialHashTarget returns the target used while a chain has only a
// single block of a given kind.
func (p Params) InitialHashTarget() *uint256.Int {
	return new(uint256.Int).Set(p.initialTarget)
}

// RetargetTimespan returns the averaging window for difficulty updates,
// which was widened at a fixed block height.
func (p Params) RetargetTimespan(height int32) int64 {
	if height < RetargetTimespanBlock {
		return RetargetTimespanEarly
	}
	return RetargetTimespanLate
}

// MoneyRange reports whether the amount is inside the valid monetary range.
func MoneyRange(v int64) bool {
	return v >= 0 && v <= MaxMoney
}
