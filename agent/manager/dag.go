package manager

import (
	"fmt"
	"sort"
)

// Graph 按声明顺序保存节点的有向图。边 from → to 表示 to 依赖 from。
type Graph struct {
	nodes []string
	index map[string]int
	down  map[string][]string
	up    map[string][]string
}

// NewGraph 创建图，重复节点返回错误
func NewGraph(nodes ...string) (*Graph, error) {
	g := &Graph{
		index: make(map[string]int, len(nodes)),
		down:  make(map[string][]string),
		up:    make(map[string][]string),
	}
	for _, n := range nodes {
		if _, dup := g.index[n]; dup {
			return nil, fmt.Errorf("duplicate node %q", n)
		}
		g.index[n] = len(g.nodes)
		g.nodes = append(g.nodes, n)
	}
	return g, nil
}

// AddEdge 添加依赖边，两端必须是已知节点
func (g *Graph) AddEdge(from, to string) error {
	if _, ok := g.index[from]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownAgent, from)
	}
	if _, ok := g.index[to]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownAgent, to)
	}
	for _, d := range g.down[from] {
		if d == to {
			return nil
		}
	}
	g.down[from] = append(g.down[from], to)
	g.up[to] = append(g.up[to], from)
	return nil
}

// Nodes 返回声明顺序的节点
func (g *Graph) Nodes() []string { return append([]string(nil), g.nodes...) }

// Upstream 返回节点的直接前驱，按声明顺序
func (g *Graph) Upstream(n string) []string { return g.sorted(g.up[n]) }

// Downstream 返回节点的直接后继，按声明顺序
func (g *Graph) Downstream(n string) []string { return g.sorted(g.down[n]) }

func (g *Graph) sorted(ns []string) []string {
	out := append([]string(nil), ns...)
	sort.Slice(out, func(i, j int) bool { return g.index[out[i]] < g.index[out[j]] })
	return out
}

// Sinks 没有后继的节点
func (g *Graph) Sinks() []string {
	var out []string
	for _, n := range g.nodes {
		if len(g.down[n]) == 0 {
			out = append(out, n)
		}
	}
	return out
}

// TopoSort Kahn 算法；同一层按声明顺序出队，结果确定。存在环时返回 *CycleError。
func (g *Graph) TopoSort() ([]string, error) {
	indeg := make(map[string]int, len(g.nodes))
	for _, n := range g.nodes {
		indeg[n] = len(g.up[n])
	}

	var ready []string
	for _, n := range g.nodes {
		if indeg[n] == 0 {
			ready = append(ready, n)
		}
	}

	order := make([]string, 0, len(g.nodes))
	for len(ready) > 0 {
		n := ready[0]
		ready = ready[1:]
		order = append(order, n)
		for _, d := range g.Downstream(n) {
			indeg[d]--
			if indeg[d] == 0 {
				ready = g.insert(ready, d)
			}
		}
	}

	if len(order) < len(g.nodes) {
		return nil, &CycleError{Path: g.findCycle(indeg)}
	}
	return order, nil
}

// insert 按声明顺序插入就绪队列
func (g *Graph) insert(queue []string, n string) []string {
	i := sort.Search(len(queue), func(i int) bool { return g.index[queue[i]] > g.index[n] })
	queue = append(queue, "")
	copy(queue[i+1:], queue[i:])
	queue[i] = n
	return queue
}

// findCycle 在剩余入度非零的节点中沿前驱走到重复节点
func (g *Graph) findCycle(indeg map[string]int) []string {
	var start string
	for _, n := range g.nodes {
		if indeg[n] > 0 {
			start = n
			break
		}
	}
	seen := map[string]int{}
	var path []string
	for n := start; ; {
		if i, ok := seen[n]; ok {
			cycle := append([]string(nil), path[i:]...)
			// 前驱方向走得到的是逆序
			for l, r := 0, len(cycle)-1; l < r; l, r = l+1, r-1 {
				cycle[l], cycle[r] = cycle[r], cycle[l]
			}
			return append(cycle, cycle[0])
		}
		seen[n] = len(path)
		path = append(path, n)
		next := ""
		for _, u := range g.Upstream(n) {
			if indeg[u] > 0 {
				next = u
				break
			}
		}
		if next == "" {
			return path
		}
		n = next
	}
}
