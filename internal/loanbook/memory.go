package loanbook

import (
	"context"
	"fmt"
	"sync"
)

// Memory is an in-memory Source used by tests and local simulation runs.
type Memory struct {
	mu    sync.RWMutex
	loans map[string]Loan
}

// NewMemory creates an in-memory loan book seeded with the given loans.
func NewMemory(loans ...Loan) *Memory {
	book := &Memory{loans: make(map[string]Loan, len(loans))}
	for _, loan := range loans {
		book.loans[loan.ID] = loan
	}
	return book
}

// Put inserts or replaces a loan.
func (m *Memory) Put(loan Loan) {
	m.mu.Lock()
	m.loans[loan.ID] = loan
	m.mu.Unlock()
}

// Remove deletes a loan, simulating repayment or closure.
func (m *Memory) Remove(loanID string) {
	m.mu.Lock()
	delete(m.loans, loanID)
	m.mu.Unlock()
}

// GetActiveLoans returns all loans in the book.
func (m *Memory) GetActiveLoans(_ context.Context) ([]Loan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	loans := make([]Loan, 0, len(m.loans))
	for _, loan := range m.loans {
		loans = append(loans, loan)
	}
	return loans, nil
}

// GetLoan returns a loan by ID or ErrLoanNotFound.
func (m *Memory) GetLoan(_ context.Context, loanID string) (Loan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	loan, ok := m.loans[loanID]
	if !ok {
		return Loan{}, fmt.Errorf("%w: %s", ErrLoanNotFound, loanID)
	}
	return loan, nil
}
