package plan

import "github.com/gertrudedb/gertrude/internal/value"

// runJoin implements spec §4.7 Join: build a hash map on the right input
// keyed by the right column's Value, scan the left input once; inner
// emits the cross product of matches, left_outer emits a null-filled
// right side when there is no match. The right side's own plan (already
// compiled, without a trailing Unwrap) is run fresh for every Join op.
func (r *Runner) runJoin(op PlanOp, leftRows []Row) ([]Row, error) {
	rightResult, err := r.Run(op.JoinRight)
	if err != nil {
		return nil, err
	}
	rightRows := rightResult.Rows

	groups := make(map[string][]Row, len(rightRows))
	for _, rr := range rightRows {
		k, ok := rr[op.JoinOn[1]]
		if !ok {
			continue
		}
		ks := string(k.Raw())
		groups[ks] = append(groups[ks], rr)
	}

	var rightTemplate Row
	if len(rightRows) > 0 {
		rightTemplate = rightRows[0]
	}

	var out []Row
	for _, lr := range leftRows {
		key, ok := lr[op.JoinOn[0]]
		if !ok || key.IsNull() {
			if op.JoinHow == JoinLeftOuter {
				out = append(out, mergeJoinRow(lr, nullRight(rightTemplate), op.JoinRename, op.JoinSuffix))
			}
			continue
		}
		matches := groups[string(key.Raw())]
		if len(matches) == 0 {
			if op.JoinHow == JoinLeftOuter {
				out = append(out, mergeJoinRow(lr, nullRight(rightTemplate), op.JoinRename, op.JoinSuffix))
			}
			continue
		}
		for _, rr := range matches {
			out = append(out, mergeJoinRow(lr, rr, op.JoinRename, op.JoinSuffix))
		}
	}
	return out, nil
}

// nullRight synthesizes a right-side row with every column null, typed
// from a sample row (left_outer's unmatched case). If no right row was
// ever produced, there is no column template to null-fill from and the
// unmatched row simply gets no right-side columns.
func nullRight(template Row) Row {
	if template == nil {
		return Row{}
	}
	out := make(Row, len(template))
	for k, v := range template {
		out[k] = value.Null(v.Type())
	}
	return out
}

func mergeJoinRow(left, right Row, mode RenameMode, suffix [2]string) Row {
	leftSuf, rightSuf := "_left", "_right"
	if mode == RenameExplicit {
		leftSuf, rightSuf = suffix[0], suffix[1]
	}
	collides := func(k string) bool {
		_, inLeft := left[k]
		_, inRight := right[k]
		return inLeft && inRight
	}

	out := make(Row, len(left)+len(right))
	for k, v := range left {
		if mode != RenameOff && collides(k) {
			out[k+leftSuf] = v
		} else {
			out[k] = v
		}
	}
	for k, v := range right {
		if mode != RenameOff && collides(k) {
			out[k+rightSuf] = v
		} else {
			out[k] = v
		}
	}
	return out
}
