package markup

import (
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/pthm/hxclient/lib/dom"
	"github.com/pthm/hxclient/lib/script"
)

// Isolated is the strategy for table-constrained engines. The markup is
// parsed twice: once inside a hidden div with iframes neutralized to collect
// the scripts in source order, once for the nodes that get inserted. Table
// sections are parsed inside a table wrapper for the second parse so the
// parser accepts them. Collected scripts run after insertion with iframe
// marks removed.
type Isolated struct {
	engine
}

// NewIsolated creates the Isolated strategy.
func NewIsolated(scripts ScriptRunner, eval script.Evaluator, opts ...Option) *Isolated {
	return &Isolated{engine: newEngine(scripts, eval, opts)}
}

// Replace implements Replacer.
func (r *Isolated) Replace(target *html.Node, text string) error {
	if err := checkTarget(target); err != nil {
		return err
	}
	r.seed()
	body := dom.Element(atom.Body)

	if target.DataAtom == atom.Script {
		probe, err := parse(text, dom.Element(atom.Div))
		if err != nil {
			return err
		}
		nodes, err := parse(text, contextFor(target))
		if err != nil {
			return err
		}
		r.replaceScript(target, scriptSource(probe), nodes)
		return nil
	}

	// A table wrapper would foster-parent non-table content out in front of
	// it and reorder the scripts, so they are always collected from a div.
	scripts, err := parse(`<div style="display:none">`+markIframes(text)+`</div>`, body)
	if err != nil {
		return err
	}
	structure := `<div style="display:none">` + text + `</div>`
	if isTableSection(target.DataAtom) {
		structure = `<table style="display:none">` + text + `</table>`
	}

	parsed, err := parse(structure, body)
	if err != nil {
		return err
	}
	var holder *html.Node
	for _, n := range parsed {
		if isTableSection(target.DataAtom) {
			if found := dom.First(n, target.DataAtom); found != nil {
				holder = found.Parent
				break
			}
		} else if dom.IsElement(n, atom.Div) {
			holder = n
			break
		}
	}

	var nodes []*html.Node
	if holder != nil {
		nodes = dom.Children(holder)
	}
	dom.InsertBefore(target, nodes)
	dom.Detach(target)

	r.log.V(2).Info("Replaced element", "inserted", len(nodes))
	r.run(scripts, unmarkIframes)
	return nil
}

// SiblingScan is the strategy for engines that apply outer content
// assignment directly. The markup is parsed and assigned in place of the
// target, then the sibling range between the target's old position and its
// old next sibling is scanned for scripts.
type SiblingScan struct {
	engine
}

// NewSiblingScan creates the SiblingScan strategy.
func NewSiblingScan(scripts ScriptRunner, eval script.Evaluator, opts ...Option) *SiblingScan {
	return &SiblingScan{engine: newEngine(scripts, eval, opts)}
}

// Replace implements Replacer.
func (r *SiblingScan) Replace(target *html.Node, text string) error {
	if err := checkTarget(target); err != nil {
		return err
	}
	r.seed()

	if target.DataAtom == atom.Script {
		probe, err := parse(text, dom.Element(atom.Div))
		if err != nil {
			return err
		}
		nodes, err := parse(text, contextFor(target))
		if err != nil {
			return err
		}
		r.replaceScript(target, scriptSource(probe), nodes)
		return nil
	}

	parent := target.Parent
	prev := target.PrevSibling
	next := target.NextSibling

	nodes, err := parse(text, contextFor(target))
	if err != nil {
		return err
	}
	dom.InsertBefore(target, nodes)
	dom.Detach(target)

	start := parent.FirstChild
	if prev != nil {
		start = prev.NextSibling
	}
	r.scan(start, next)
	return nil
}

// Contextual is the strategy for standards-compliant engines: a fragment is
// built from the markup in the context of the target's position and replaces
// the target directly. Scripts are then found by the same sibling scan
// SiblingScan uses.
type Contextual struct {
	engine
}

// NewContextual creates the Contextual strategy.
func NewContextual(scripts ScriptRunner, eval script.Evaluator, opts ...Option) *Contextual {
	return &Contextual{engine: newEngine(scripts, eval, opts)}
}

// Replace implements Replacer.
func (r *Contextual) Replace(target *html.Node, text string) error {
	if err := checkTarget(target); err != nil {
		return err
	}
	r.seed()

	fragment, err := parse(text, contextFor(target))
	if err != nil {
		return err
	}

	if target.DataAtom == atom.Script {
		r.replaceScript(target, scriptSource(fragment), fragment)
		return nil
	}

	next := target.NextSibling
	dom.InsertBefore(target, fragment)
	dom.Detach(target)

	if len(fragment) > 0 {
		r.scan(fragment[0], next)
	}
	return nil
}

var (
	_ Replacer = (*Isolated)(nil)
	_ Replacer = (*SiblingScan)(nil)
	_ Replacer = (*Contextual)(nil)
)
