package voiceid

// UnionFind система непересекающихся множеств над метками треков
// со сжатием путей. Find на незнакомой метке не паникует:
// метка трактуется как собственный синглтон
type UnionFind struct {
	parent map[string]string
}

// NewUnionFind создаёт пустую структуру
func NewUnionFind() *UnionFind {
	return &UnionFind{parent: make(map[string]string)}
}

// Find возвращает каноническую метку для label
func (u *UnionFind) Find(label string) string {
	p, ok := u.parent[label]
	if !ok {
		return label
	}
	if p == label {
		return label
	}
	root := u.Find(p)
	u.parent[label] = root // сжатие пути
	return root
}

// Union объединяет множества двух меток, возвращает каноническую
func (u *UnionFind) Union(a, b string) string {
	ra := u.Find(a)
	rb := u.Find(b)
	if ra == rb {
		return ra
	}
	if _, ok := u.parent[ra]; !ok {
		u.parent[ra] = ra
	}
	if _, ok := u.parent[rb]; !ok {
		u.parent[rb] = rb
	}
	u.parent[rb] = ra
	return ra
}

// Canonicalize повторно сжимает все пути. Вызывается при сбросе кэша
func (u *UnionFind) Canonicalize() {
	for label := range u.parent {
		u.Find(label)
	}
}
