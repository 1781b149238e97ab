package tray

// Iterator 口袋迭代器，按行优先遍历料盘的全部口袋
type Iterator struct {
	rows    int
	cols    int
	current int
}

// NewIterator 创建口袋迭代器
func NewIterator(rows, cols int) *Iterator {
	return &Iterator{
		rows:    rows,
		cols:    cols,
		current: 0,
	}
}

// Next 获取下一个口袋，遍历完毕返回 nil
func (it *Iterator) Next() *Pocket {
	if it.current >= it.rows*it.cols {
		return nil
	}

	row := it.current/it.cols + 1
	col := it.current%it.cols + 1
	it.current++

	return &Pocket{
		Rows: it.rows,
		Cols: it.cols,
		Row:  row,
		Col:  col,
	}
}

// Reset 重置迭代器
func (it *Iterator) Reset() {
	it.current = 0
}

// Count 返回口袋总数
func (it *Iterator) Count() int {
	return it.rows * it.cols
}
