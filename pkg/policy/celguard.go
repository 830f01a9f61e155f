package policy

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
)

// Guard evaluates admin-configured CEL expressions against an XP issuance
// before the built-in caps run. Expressions see the issuance context as
// variables and must evaluate to bool; a false result blocks the grant.
//
// Example rule: `amount <= 250 || minter == "backend"`.
type Guard struct {
	env   *cel.Env
	mu    sync.RWMutex
	rules map[string]cel.Program
}

// NewGuard creates a guard with the standard issuance environment.
func NewGuard() (*Guard, error) {
	env, err := cel.NewEnv(
		cel.Variable("minter", cel.StringType),
		cel.Variable("learner", cel.StringType),
		cel.Variable("amount", cel.UintType),
		cel.Variable("daily_total", cel.UintType),
		cel.Variable("achievement_sourced", cel.BoolType),
	)
	if err != nil {
		return nil, fmt.Errorf("policy: failed to create CEL environment: %w", err)
	}
	return &Guard{env: env, rules: make(map[string]cel.Program)}, nil
}

// AddRule compiles and installs a named rule. Replacing an existing name
// is allowed; compilation failures leave the previous rule in place.
func (g *Guard) AddRule(name, expr string) error {
	ast, issues := g.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return fmt.Errorf("policy: rule %q compile failed: %w", name, issues.Err())
	}
	prg, err := g.env.Program(ast)
	if err != nil {
		return fmt.Errorf("policy: rule %q program failed: %w", name, err)
	}
	g.mu.Lock()
	g.rules[name] = prg
	g.mu.Unlock()
	return nil
}

// RemoveRule deletes a rule by name.
func (g *Guard) RemoveRule(name string) {
	g.mu.Lock()
	delete(g.rules, name)
	g.mu.Unlock()
}

// Check runs every installed rule against the issuance. The first rule that
// evaluates false (or fails to evaluate) blocks the grant. Evaluation errors
// fail closed.
func (g *Guard) Check(iss XPIssuance, learner string) error {
	g.mu.RLock()
	defer g.mu.RUnlock()

	minter := ""
	if iss.Minter != nil {
		minter = iss.Minter.Signer
	}
	input := map[string]any{
		"minter":              minter,
		"learner":             learner,
		"amount":              iss.Amount,
		"daily_total":         iss.LearnerDailyTotal,
		"achievement_sourced": iss.AchievementSourced,
	}

	for name, prg := range g.rules {
		out, _, err := prg.Eval(input)
		if err != nil {
			return fmt.Errorf("policy: rule %q evaluation failed: %w", name, err)
		}
		allowed, ok := out.Value().(bool)
		if !ok {
			return fmt.Errorf("policy: rule %q did not return bool", name)
		}
		if !allowed {
			return fmt.Errorf("policy: rule %q blocked issuance", name)
		}
	}
	return nil
}
