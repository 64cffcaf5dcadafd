package dataio

// Page is one decoded page of a block file. Values are logical: complex
// columns hold one []interface{} of elements per row.
type Page struct {
	Rows int
	Cols map[string][]interface{}
}

type BlockFile interface {
	Blocklets() int
	Pages(blocklet int) int
	HasColumn(name string) bool
	Page(blocklet, page int) *Page
}
