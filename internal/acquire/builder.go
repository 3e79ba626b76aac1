package acquire

import "concursobot/internal/model"

// builder assembles a RecordSet, keeping groups in first-seen order.
type builder struct {
	shape   model.Shape
	records []model.Record
	groups  []model.Group
	index   map[string]int
	sub     []map[string]int
}

func newBuilder(shape model.Shape) *builder {
	return &builder{shape: shape, index: make(map[string]int)}
}

// add appends rec under keys; len(keys) must match the shape depth.
func (b *builder) add(keys []string, rec model.Record) {
	switch len(keys) {
	case 0:
		b.records = append(b.records, rec)
	case 1:
		i := b.group(keys[0])
		b.groups[i].Records = append(b.groups[i].Records, rec)
	default:
		i := b.group(keys[0])
		j, ok := b.sub[i][keys[1]]
		if !ok {
			j = len(b.groups[i].Groups)
			b.groups[i].Groups = append(b.groups[i].Groups, model.Group{Key: keys[1]})
			b.sub[i][keys[1]] = j
		}
		b.groups[i].Groups[j].Records = append(b.groups[i].Groups[j].Records, rec)
	}
}

func (b *builder) group(key string) int {
	if i, ok := b.index[key]; ok {
		return i
	}
	i := len(b.groups)
	b.groups = append(b.groups, model.Group{Key: key})
	b.sub = append(b.sub, make(map[string]int))
	b.index[key] = i
	return i
}

func (b *builder) set() model.RecordSet {
	return model.RecordSet{Shape: b.shape, Records: b.records, Groups: b.groups}
}

// full reports whether at least n top-level groups were collected. A zero n
// never fills.
func (b *builder) full(n int) bool {
	return n > 0 && len(b.groups) >= n
}

// limit keeps the first n top-level groups. A zero n keeps everything.
func (b *builder) limit(n int) {
	if n <= 0 || len(b.groups) <= n {
		return
	}
	for _, g := range b.groups[n:] {
		delete(b.index, g.Key)
	}
	b.groups = b.groups[:n]
	b.sub = b.sub[:n]
}
