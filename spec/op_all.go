package spec

func All() (ret []Op) {
	for i := 0; i < (1 << OpBits); i++ {
		p := Op(i)
		if !p.Defined() {
			continue
		}
		ret = append(ret, p)
	}
	return ret
}

// ParseOp looks up an Op by its name
func ParseOp(x string) (Op, bool) {
	for _, p := range All() {
		if p.String() == x {
			return p, true
		}
	}
	return 0, false
}
