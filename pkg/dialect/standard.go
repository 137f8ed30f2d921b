package dialect

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/leapstack-labs/leapmeta/pkg/core"
	"github.com/leapstack-labs/leapmeta/pkg/expr"
	"github.com/leapstack-labs/leapmeta/pkg/plan"
)

// Standard is the Config-driven Dialect implementation shared by all backends.
type Standard struct {
	cfg      Config
	reserved map[string]struct{}
	hash     func(arg string) string
	quoter   func(name string) string
	override StatementOverride
	engine   EngineFactory
}

var _ Dialect = (*Standard)(nil)

// Name returns the dialect name.
func (d *Standard) Name() string { return d.cfg.Name }

// Config returns the dialect configuration.
func (d *Standard) Config() Config { return d.cfg }

// Capabilities returns the dialect capability flags.
func (d *Standard) Capabilities() core.Capabilities {
	caps := d.cfg.Capabilities
	caps.SupportsHashExpression = caps.SupportsHashExpression && d.hash != nil
	return caps
}

// ExecutionEngine returns an unconnected executor for the target.
func (d *Standard) ExecutionEngine(cfg core.TargetConfig, logger *slog.Logger) (core.Executor, error) {
	if d.engine == nil {
		return nil, &core.DialectCapabilityError{Dialect: d.cfg.Name, Capability: "execution"}
	}
	return d.engine(cfg, logger)
}

func (d *Standard) unsupported(capability string) error {
	return &core.DialectCapabilityError{Dialect: d.cfg.Name, Capability: capability}
}

// --- Identifiers ---

// RenderIdentifier quotes name when it is not a plain identifier or is reserved.
func (d *Standard) RenderIdentifier(name string) string {
	if isPlain(name) {
		if _, reserved := d.reserved[strings.ToLower(name)]; !reserved {
			return name
		}
	}
	if d.quoter != nil {
		return d.quoter(name)
	}
	id := d.cfg.Identifiers
	q, qe, esc := id.Quote, id.QuoteEnd, id.Escape
	if q == "" {
		q, qe, esc = `"`, `"`, `""`
	}
	if qe == "" {
		qe = q
	}
	return q + strings.ReplaceAll(name, qe, esc) + qe
}

// RenderTableIdentifier renders schema.name, or name when no schema is set.
func (d *Standard) RenderTableIdentifier(t core.TableRef) string {
	if t.Schema == "" {
		return d.RenderIdentifier(t.Name)
	}
	return d.RenderIdentifier(t.Schema) + "." + d.RenderIdentifier(t.Name)
}

// isPlain reports whether name is a lowercase identifier that never needs quoting.
func isPlain(name string) bool {
	if name == "" {
		return false
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c == '_' || (c >= 'a' && c <= 'z'):
		case c >= '0' && c <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}

// --- Types ---

// MapType translates a declared type using the dialect TypeMap.
func (d *Standard) MapType(typ string) string {
	typ = strings.TrimSpace(typ)
	base, params := typ, ""
	if i := strings.Index(typ, "("); i >= 0 && strings.HasSuffix(typ, ")") {
		base, params = strings.TrimSpace(typ[:i]), typ[i+1:len(typ)-1]
	}
	mapped, ok := d.cfg.TypeMap[strings.ToUpper(base)]
	if !ok {
		return typ
	}
	if strings.Contains(mapped, "%s") {
		if params == "" {
			return strings.TrimSuffix(strings.Replace(mapped, "(%s)", "", 1), "%s")
		}
		return fmt.Sprintf(mapped, params)
	}
	return mapped
}

// CastExpression renders CAST(e AS type).
func (d *Standard) CastExpression(e expr.Expr, targetType string) (string, error) {
	inner, err := d.RenderExpression(e)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("CAST(%s AS %s)", inner, d.MapType(targetType)), nil
}

// --- Expressions ---

// RenderExpression renders an expression tree.
func (d *Standard) RenderExpression(e expr.Expr) (string, error) {
	switch n := e.(type) {
	case *expr.Literal:
		return d.renderLiteral(n), nil
	case *expr.ColumnRef:
		if n.Table != "" {
			return d.RenderIdentifier(n.Table) + "." + d.RenderIdentifier(n.Column), nil
		}
		return d.RenderIdentifier(n.Column), nil
	case *expr.ExprRef:
		return "", fmt.Errorf("unresolved expression reference {expr:%s}", n.Name)
	case *expr.Concat:
		return d.renderCall("CONCAT", n.Args)
	case *expr.ConcatWs:
		return d.renderCall("CONCAT_WS", append([]expr.Expr{n.Separator}, n.Args...))
	case *expr.Coalesce:
		return d.renderCall("COALESCE", n.Args)
	case *expr.Hash256:
		if d.hash == nil || !d.cfg.Capabilities.SupportsHashExpression {
			return "", d.unsupported("hash expression")
		}
		arg, err := d.RenderExpression(n.Arg)
		if err != nil {
			return "", err
		}
		return d.hash(arg), nil
	case *expr.Cast:
		return d.CastExpression(n.Expr, n.Type)
	case *expr.WindowFunction:
		return d.renderWindow(n)
	case *expr.Binary:
		return d.renderBinary(n)
	case nil:
		return "", fmt.Errorf("nil expression")
	}
	return "", fmt.Errorf("unsupported expression node %T", e)
}

func (d *Standard) renderLiteral(l *expr.Literal) string {
	switch l.Kind {
	case expr.LiteralString:
		return "'" + strings.ReplaceAll(l.Value, "'", "''") + "'"
	case expr.LiteralNull:
		return "NULL"
	case expr.LiteralBool:
		if strings.EqualFold(l.Value, "true") {
			return d.cfg.BoolLiterals[0]
		}
		return d.cfg.BoolLiterals[1]
	default:
		return l.Value
	}
}

func (d *Standard) renderList(args []expr.Expr) (string, error) {
	parts := make([]string, len(args))
	for i, a := range args {
		s, err := d.RenderExpression(a)
		if err != nil {
			return "", err
		}
		parts[i] = s
	}
	return strings.Join(parts, ", "), nil
}

func (d *Standard) renderCall(name string, args []expr.Expr) (string, error) {
	list, err := d.renderList(args)
	if err != nil {
		return "", err
	}
	return name + "(" + list + ")", nil
}

func (d *Standard) renderWindow(w *expr.WindowFunction) (string, error) {
	call, err := d.renderCall(strings.ToUpper(w.Name), w.Args)
	if err != nil {
		return "", err
	}

	var over []string
	if len(w.PartitionBy) > 0 {
		list, err := d.renderList(w.PartitionBy)
		if err != nil {
			return "", err
		}
		over = append(over, "PARTITION BY "+list)
	}
	if len(w.OrderBy) > 0 {
		order, err := d.renderOrder(w.OrderBy)
		if err != nil {
			return "", err
		}
		over = append(over, "ORDER BY "+order)
	}
	return call + " OVER (" + strings.Join(over, " ") + ")", nil
}

func (d *Standard) renderOrder(items []expr.OrderItem) (string, error) {
	parts := make([]string, len(items))
	for i, o := range items {
		s, err := d.RenderExpression(o.Expr)
		if err != nil {
			return "", err
		}
		if o.Desc {
			s += " DESC"
		}
		parts[i] = s
	}
	return strings.Join(parts, ", "), nil
}

func (d *Standard) renderBinary(b *expr.Binary) (string, error) {
	side := func(e expr.Expr) (string, error) {
		s, err := d.RenderExpression(e)
		if err != nil {
			return "", err
		}
		if inner, ok := e.(*expr.Binary); ok && inner.Op != b.Op {
			return "(" + s + ")", nil
		}
		return s, nil
	}
	l, err := side(b.Left)
	if err != nil {
		return "", err
	}
	r, err := side(b.Right)
	if err != nil {
		return "", err
	}
	return l + " " + string(b.Op) + " " + r, nil
}

// --- Queries ---

// RenderSelect renders a query tree.
func (d *Standard) RenderSelect(n plan.Node) (string, error) {
	switch q := n.(type) {
	case *plan.Select:
		return d.renderSelect(q)
	case *plan.Union:
		if len(q.Selects) == 0 {
			return "", fmt.Errorf("union without branches")
		}
		op := "\nUNION\n"
		if q.All {
			op = "\nUNION ALL\n"
		}
		parts := make([]string, len(q.Selects))
		for i, s := range q.Selects {
			sql, err := d.renderSelect(s)
			if err != nil {
				return "", err
			}
			parts[i] = sql
		}
		return strings.Join(parts, op), nil
	case nil:
		return "", fmt.Errorf("nil query")
	}
	return "", fmt.Errorf("unsupported query node %T", n)
}

func (d *Standard) renderSelect(s *plan.Select) (string, error) {
	if len(s.Items) == 0 {
		return "", fmt.Errorf("select without items")
	}

	var b strings.Builder
	b.WriteString("SELECT\n")
	for i, it := range s.Items {
		e, err := d.RenderExpression(it.Expr)
		if err != nil {
			return "", err
		}
		b.WriteString("    ")
		b.WriteString(e)
		if it.Alias != "" && !isSameColumn(it.Expr, it.Alias) {
			b.WriteString(" AS ")
			b.WriteString(d.RenderIdentifier(it.Alias))
		}
		if i < len(s.Items)-1 {
			b.WriteString(",")
		}
		b.WriteString("\n")
	}

	if s.From != nil {
		from, err := d.renderSource(s.From)
		if err != nil {
			return "", err
		}
		b.WriteString("FROM ")
		b.WriteString(from)
	}
	if s.Where != nil {
		w, err := d.RenderExpression(s.Where)
		if err != nil {
			return "", err
		}
		b.WriteString("\nWHERE ")
		b.WriteString(w)
	}
	if len(s.GroupBy) > 0 {
		g, err := d.renderList(s.GroupBy)
		if err != nil {
			return "", err
		}
		b.WriteString("\nGROUP BY ")
		b.WriteString(g)
	}
	if len(s.OrderBy) > 0 {
		o, err := d.renderOrder(s.OrderBy)
		if err != nil {
			return "", err
		}
		b.WriteString("\nORDER BY ")
		b.WriteString(o)
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

func (d *Standard) renderSource(src plan.Source) (string, error) {
	switch s := src.(type) {
	case *plan.TableSource:
		out := d.RenderTableIdentifier(s.Table)
		if s.Alias != "" {
			out += " AS " + d.RenderIdentifier(s.Alias)
		}
		return out, nil
	case *plan.SubquerySource:
		return d.subquery(s.Query, s.Alias)
	}
	return "", fmt.Errorf("unsupported source node %T", src)
}

// subquery renders (query) AS alias with the query indented.
func (d *Standard) subquery(q plan.Node, alias string) (string, error) {
	inner, err := d.RenderSelect(q)
	if err != nil {
		return "", err
	}
	return "(\n" + indent(inner) + "\n) AS " + d.RenderIdentifier(alias), nil
}

func isSameColumn(e expr.Expr, alias string) bool {
	c, ok := e.(*expr.ColumnRef)
	return ok && c.Column == alias
}

func indent(s string) string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		if l != "" {
			lines[i] = "    " + l
		}
	}
	return strings.Join(lines, "\n")
}
