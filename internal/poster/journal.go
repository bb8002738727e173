package poster

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/fieldsync/internal/ledger"
	"github.com/odyssey-erp/fieldsync/internal/shared"
	"github.com/odyssey-erp/fieldsync/internal/store"
	"github.com/odyssey-erp/fieldsync/internal/translate"
)

// JournalLine is one balanced debit/credit pair.
type JournalLine struct {
	DebitAccountID  int64
	CreditAccountID int64
	Amount          decimal.Decimal
	Memo            string
}

// JournalPosting is a double-entry move ready to create.
type JournalPosting struct {
	WorkOrderID   string
	ReferenceText string
	JournalID     int64
	Lines         []JournalLine
}

// BuildJournal applies the amount and direction rules for state. COMPLETED
// lines cost unit price times quantity and debit the cost center; REVERSED
// lines restate the unit price alone with the accounts swapped.
func BuildJournal(acc translate.Accounting, state store.State, journalID int64) (JournalPosting, error) {
	if acc.CostCenterLedgerID == 0 || acc.OffsetAccountID == 0 {
		return JournalPosting{}, shared.Lookupf("journal %s: accounts not resolved", acc.Reference)
	}
	j := JournalPosting{WorkOrderID: acc.WorkOrderID, ReferenceText: acc.Reference, JournalID: journalID}
	for _, l := range acc.Lines {
		line := JournalLine{Memo: l.Memo}
		switch state {
		case store.StateCompleted:
			line.Amount = l.UnitPrice.Mul(l.Quantity)
			line.DebitAccountID, line.CreditAccountID = acc.CostCenterLedgerID, acc.OffsetAccountID
		case store.StateReversed:
			line.Amount = l.UnitPrice
			line.DebitAccountID, line.CreditAccountID = acc.OffsetAccountID, acc.CostCenterLedgerID
		default:
			return JournalPosting{}, shared.Validationf("unknown state %q", state)
		}
		j.Lines = append(j.Lines, line)
	}
	return j, j.Validate()
}

// Validate checks every pair is non-negative and the entry balances.
func (j JournalPosting) Validate() error {
	debit, credit := decimal.Zero, decimal.Zero
	for _, l := range j.Lines {
		if l.Amount.IsNegative() {
			return shared.Validationf("journal %s: negative amount %s", j.ReferenceText, l.Amount)
		}
		if l.DebitAccountID == l.CreditAccountID {
			return shared.Validationf("journal %s: debit and credit on account %d", j.ReferenceText, l.DebitAccountID)
		}
		debit = debit.Add(l.Amount.Round(2))
		credit = credit.Add(l.Amount.Round(2))
	}
	if !debit.Equal(credit) {
		return shared.Validationf("journal %s unbalanced: %s != %s", j.ReferenceText, debit, credit)
	}
	return nil
}

// Total is the sum of the line amounts.
func (j JournalPosting) Total() decimal.Decimal {
	total := decimal.Zero
	for _, l := range j.Lines {
		total = total.Add(l.Amount)
	}
	return total
}

func (j JournalPosting) input() ledger.JournalInput {
	in := ledger.JournalInput{Ref: j.ReferenceText, JournalID: j.JournalID}
	for _, l := range j.Lines {
		if l.Amount.IsZero() {
			continue
		}
		in.Lines = append(in.Lines,
			ledger.JournalLineInput{AccountID: l.DebitAccountID, Name: l.Memo, Debit: l.Amount, Credit: decimal.Zero},
			ledger.JournalLineInput{AccountID: l.CreditAccountID, Name: l.Memo, Debit: decimal.Zero, Credit: l.Amount},
		)
	}
	return in
}

func moveName(p translate.InventoryPosting, state store.State) string {
	if state == store.StateReversed {
		return fmt.Sprintf("Return %s %s", p.WorkOrderID, p.MaterialCode)
	}
	return fmt.Sprintf("Consume %s %s", p.WorkOrderID, p.MaterialCode)
}
