package drift

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go"
)

type InstructionKind string

const (
	InstructionInitializeUser InstructionKind = "initialize_user"
	InstructionPlaceOrder     InstructionKind = "place_order"
)

var (
	ErrUnknownInstruction = errors.New("unknown instruction kind")
	ErrInstructionOrder   = errors.New("invalid instruction order")
	ErrMarketMismatch     = errors.New("order market does not match resolved accounts")
	ErrUnresolvedAccount  = errors.New("account not resolved")
)

type accountSlot uint8

const (
	slotUser accountSlot = iota
	slotUserStats
	slotState
	slotPerpMarket
	slotOracle
	slotAuthority
	slotRent
	slotSystemProgram
)

type accountSpec struct {
	slot     accountSlot
	writable bool
	signer   bool
}

// Account order and flags per instruction, as declared by the program.
var accountSchemas = map[InstructionKind][]accountSpec{
	InstructionInitializeUser: {
		{slot: slotUser, writable: true},
		{slot: slotUserStats, writable: true},
		{slot: slotState},
		{slot: slotAuthority, signer: true},
		{slot: slotSystemProgram},
	},
	InstructionPlaceOrder: {
		{slot: slotUser, writable: true},
		{slot: slotUserStats, writable: true},
		{slot: slotState},
		{slot: slotPerpMarket, writable: true},
		{slot: slotOracle},
		{slot: slotAuthority, signer: true},
		{slot: slotRent},
		{slot: slotSystemProgram},
	},
}

// Instructions that must appear earlier in a plan than the key kind.
var planPrerequisites = map[InstructionKind][]InstructionKind{
	InstructionPlaceOrder: {InstructionInitializeUser},
}

// AccountSet holds every address an instruction in this package can reference.
type AccountSet struct {
	Authority   solana.PublicKey
	User        solana.PublicKey
	UserStats   solana.PublicKey
	State       solana.PublicKey
	PerpMarket  solana.PublicKey
	Oracle      solana.PublicKey
	MarketIndex uint16
}

// ResolveAccounts derives the program addresses the plan references. Market
// accounts are resolved only when a planned instruction uses them; the oracle
// is looked up first so an unsupported market fails before any derivation.
func ResolveAccounts(programID solana.PublicKey, authority solana.PublicKey, marketIndex uint16, plan []InstructionKind) (*AccountSet, error) {
	accounts := &AccountSet{Authority: authority, MarketIndex: marketIndex}

	if planUsesMarket(plan) {
		oracle, err := OracleForMarket(marketIndex)
		if err != nil {
			return nil, err
		}
		market, _, err := DerivePerpMarketPDA(programID, marketIndex)
		if err != nil {
			return nil, fmt.Errorf("derive perp market PDA: %w", err)
		}
		accounts.Oracle = oracle
		accounts.PerpMarket = market
	}

	var err error
	if accounts.User, _, err = DeriveUserPDA(programID, authority); err != nil {
		return nil, fmt.Errorf("derive user PDA: %w", err)
	}
	if accounts.UserStats, _, err = DeriveUserStatsPDA(programID, authority); err != nil {
		return nil, fmt.Errorf("derive user stats PDA: %w", err)
	}
	if accounts.State, _, err = DeriveStatePDA(programID); err != nil {
		return nil, fmt.Errorf("derive state PDA: %w", err)
	}
	return accounts, nil
}

// HasMarket reports whether the market and oracle accounts were resolved.
func (a *AccountSet) HasMarket() bool {
	return !a.PerpMarket.IsZero()
}

func planUsesMarket(plan []InstructionKind) bool {
	for _, kind := range plan {
		for _, spec := range accountSchemas[kind] {
			if spec.slot == slotPerpMarket || spec.slot == slotOracle {
				return true
			}
		}
	}
	return false
}

// key returns the address for slot. Derived slots left unset by
// ResolveAccounts are reported instead of emitting the zero key, which is the
// system program's address.
func (a *AccountSet) key(slot accountSlot) (solana.PublicKey, error) {
	var key solana.PublicKey
	switch slot {
	case slotRent:
		return solana.SysVarRentPubkey, nil
	case slotSystemProgram:
		return solana.SystemProgramID, nil
	case slotUser:
		key = a.User
	case slotUserStats:
		key = a.UserStats
	case slotState:
		key = a.State
	case slotPerpMarket:
		key = a.PerpMarket
	case slotOracle:
		key = a.Oracle
	case slotAuthority:
		key = a.Authority
	default:
		return solana.PublicKey{}, fmt.Errorf("%w: unknown slot %d", ErrUnresolvedAccount, slot)
	}
	if key.IsZero() {
		return solana.PublicKey{}, fmt.Errorf("%w: slot %d", ErrUnresolvedAccount, slot)
	}
	return key, nil
}

func (a *AccountSet) Metas(kind InstructionKind) (solana.AccountMetaSlice, error) {
	return a.metasFor(kind, accountSchemas[kind])
}

func (a *AccountSet) metasFor(kind InstructionKind, schema []accountSpec) (solana.AccountMetaSlice, error) {
	if len(schema) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrUnknownInstruction, kind)
	}
	metas := make(solana.AccountMetaSlice, 0, len(schema))
	for i, spec := range schema {
		key, err := a.key(spec.slot)
		if err != nil {
			return nil, fmt.Errorf("%s account %d: %w", kind, i, err)
		}
		metas = append(metas, solana.NewAccountMeta(key, spec.writable, spec.signer))
	}
	return metas, nil
}

func NewInitializeUserInstruction(programID solana.PublicKey, accounts *AccountSet) (solana.Instruction, error) {
	metas, err := accounts.Metas(InstructionInitializeUser)
	if err != nil {
		return nil, err
	}
	return solana.NewInstruction(programID, metas, EncodeInitializeUser()), nil
}

func NewPlaceOrderInstruction(programID solana.PublicKey, accounts *AccountSet, params PlaceOrderParams) (solana.Instruction, error) {
	if params.MarketIndex != accounts.MarketIndex {
		return nil, fmt.Errorf("%w: order market %d, accounts market %d", ErrMarketMismatch, params.MarketIndex, accounts.MarketIndex)
	}
	metas, err := accounts.Metas(InstructionPlaceOrder)
	if err != nil {
		return nil, err
	}
	data, err := EncodePlaceOrder(params)
	if err != nil {
		return nil, err
	}
	return solana.NewInstruction(programID, metas, data), nil
}

// BuildInstructions turns a plan into program instructions, preserving plan
// order.
func BuildInstructions(programID solana.PublicKey, accounts *AccountSet, plan []InstructionKind, order PlaceOrderParams) ([]solana.Instruction, error) {
	out := make([]solana.Instruction, 0, len(plan))
	for _, kind := range plan {
		var (
			ix  solana.Instruction
			err error
		)
		switch kind {
		case InstructionInitializeUser:
			ix, err = NewInitializeUserInstruction(programID, accounts)
		case InstructionPlaceOrder:
			ix, err = NewPlaceOrderInstruction(programID, accounts, order)
		default:
			err = fmt.Errorf("%w: %q", ErrUnknownInstruction, kind)
		}
		if err != nil {
			return nil, fmt.Errorf("build %s instruction: %w", kind, err)
		}
		out = append(out, ix)
	}
	return out, nil
}

// ParsePlan validates instruction names and their relative order. Duplicates
// are rejected since each instruction is issued at most once per transaction.
func ParsePlan(names []string) ([]InstructionKind, error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("%w: empty plan", ErrInstructionOrder)
	}

	plan := make([]InstructionKind, 0, len(names))
	position := make(map[InstructionKind]int, len(names))
	for i, name := range names {
		kind := InstructionKind(strings.ToLower(strings.TrimSpace(name)))
		if _, ok := accountSchemas[kind]; !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownInstruction, name)
		}
		if _, dup := position[kind]; dup {
			return nil, fmt.Errorf("%w: %s listed twice", ErrInstructionOrder, kind)
		}
		position[kind] = i
		plan = append(plan, kind)
	}

	for kind, idx := range position {
		for _, prerequisite := range planPrerequisites[kind] {
			if prereqIdx, ok := position[prerequisite]; ok && prereqIdx > idx {
				return nil, fmt.Errorf("%w: %s must precede %s", ErrInstructionOrder, prerequisite, kind)
			}
		}
	}
	return plan, nil
}
