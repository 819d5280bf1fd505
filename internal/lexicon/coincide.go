package lexicon

// Direction selects which neighbour of an instance is compared.
type Direction int

const (
	Backward Direction = -1
	Forward  Direction = 1
)

func (d Direction) String() string {
	if d == Backward {
		return "backward"
	}
	return "forward"
}

// Neighbor returns the instance next to id in its own message.
func (l *Lexicon) Neighbor(id InstanceID, dir Direction) (InstanceID, bool) {
	ins := l.instances[id]
	msg := l.messages[ins.Message].Instances
	i := ins.Index + int(dir)
	if i < 0 || i >= len(msg) {
		return 0, false
	}
	return msg[i], true
}

// Coincide reports whether the neighbours of x and y in direction dir are
// interchangeable. Neighbours in linked categories coincide. Neighbours that
// are the same word coincide once wordDistance is spent; until then the
// comparison moves one step further out with both budgets reduced. Two
// message boundaries coincide only when edgeDistance has been used up.
func (l *Lexicon) Coincide(x, y InstanceID, dir Direction, edgeDistance, wordDistance int) bool {
	nx, okx := l.Neighbor(x, dir)
	ny, oky := l.Neighbor(y, dir)

	switch {
	case okx && oky:
		cx, cy := l.instances[nx].Category, l.instances[ny].Category
		if l.ArePrecocategories(cx, cy) || l.ArePostcocategories(cx, cy) {
			return true
		}
		if l.instances[nx].Word != l.instances[ny].Word {
			return false
		}
		if wordDistance <= 0 {
			return true
		}
		return l.Coincide(nx, ny, dir, max(edgeDistance-1, 0), wordDistance-1)
	case !okx && !oky:
		return edgeDistance <= 0
	default:
		return false
	}
}
