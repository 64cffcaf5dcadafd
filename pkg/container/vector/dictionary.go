package vector

type sliceDictionary struct {
	values [][]byte
}

// NewDictionary returns a dictionary where surrogate key i maps to values[i].
func NewDictionary(values [][]byte) Dictionary {
	return &sliceDictionary{values: values}
}

func (d *sliceDictionary) Value(key int32) []byte {
	if key < 0 || int(key) >= len(d.values) {
		return nil
	}
	return d.values[key]
}

func (d *sliceDictionary) Size() int { return len(d.values) }
