// Package prompt asks the operator for the recipient, amount and transaction count.
package prompt

import (
	"math/big"
	"math/rand/v2"
	"strings"

	"github.com/AlecAivazis/survey/v2"
	"github.com/ethereum/go-ethereum/common"

	"github.com/metis-devops/task-sender/internal/input"
)

const (
	RecipientMessage = "Enter address to send tokens (leave blank to send to yourself):"
	AmountMessage    = "Enter amount to send (enter 0 for random between 0.000001 and 0.0001 ETH):"
	CountMessage     = "Enter number of transactions to send:"

	// Self as a preset recipient sends to the sending account.
	Self = "self"
)

// AskFunc has the signature of survey.AskOne.
type AskFunc func(p survey.Prompt, response interface{}, opts ...survey.AskOpt) error

// Answers are preset values, typically from flags. A non-empty field skips its question.
type Answers struct {
	To     string
	Amount string
	Count  string
}

type Params struct {
	Recipient common.Address
	ValueWei  *big.Int
	Count     int
}

type Prompter struct {
	ask AskFunc
	rnd *rand.Rand
}

func NewPrompter(rnd *rand.Rand) *Prompter {
	return &Prompter{ask: survey.AskOne, rnd: rnd}
}

// SetAskFunc replaces the terminal prompt.
func (p *Prompter) SetAskFunc(fn AskFunc) {
	p.ask = fn
}

// Collect resolves every answer, asking only for those not preset. The first
// invalid answer is returned as an input error. A random amount is drawn once,
// so every transaction of the run sends the same value.
func (p *Prompter) Collect(self common.Address, preset Answers) (*Params, error) {
	rawTo := preset.To
	if strings.EqualFold(strings.TrimSpace(rawTo), Self) {
		rawTo = ""
	} else if rawTo == "" {
		var err error
		if rawTo, err = p.input(RecipientMessage); err != nil {
			return nil, err
		}
	}
	recipient, err := input.ParseRecipient(rawTo, self)
	if err != nil {
		return nil, err
	}

	rawAmount := preset.Amount
	if rawAmount == "" {
		if rawAmount, err = p.input(AmountMessage); err != nil {
			return nil, err
		}
	}
	value, err := input.ParseAmountWei(rawAmount, p.rnd)
	if err != nil {
		return nil, err
	}

	rawCount := preset.Count
	if rawCount == "" {
		if rawCount, err = p.input(CountMessage); err != nil {
			return nil, err
		}
	}
	count, err := input.ParseCount(rawCount)
	if err != nil {
		return nil, err
	}

	return &Params{Recipient: recipient, ValueWei: value, Count: count}, nil
}

// input asks once. The answer is parsed by the caller and an invalid one ends
// the run instead of asking again.
func (p *Prompter) input(message string) (string, error) {
	var result string
	q := &survey.Input{
		Message: message,
	}
	err := p.ask(q, &result)
	return result, err
}
