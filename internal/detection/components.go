package detection

// component is the bounding extent of one 4-connected group of edge pixels.
type component struct {
	minX, minY int
	maxX, maxY int
	pixels     int
}

// components labels 4-connected groups of edge pixels in raster discovery
// order. It uses an explicit stack so large components cannot exhaust the
// goroutine stack.
func components(edges []bool, width, height int) []component {
	visited := make([]bool, len(edges))
	stack := make([]int, 0, 256)
	var out []component

	for start, isEdge := range edges {
		if !isEdge || visited[start] {
			continue
		}

		c := component{
			minX: start % width, minY: start / width,
			maxX: start % width, maxY: start / width,
		}
		visited[start] = true
		stack = append(stack[:0], start)

		for len(stack) > 0 {
			idx := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			x, y := idx%width, idx/width

			c.pixels++
			if x < c.minX {
				c.minX = x
			}
			if x > c.maxX {
				c.maxX = x
			}
			if y < c.minY {
				c.minY = y
			}
			if y > c.maxY {
				c.maxY = y
			}

			if x > 0 {
				stack = push(stack, edges, visited, idx-1)
			}
			if x < width-1 {
				stack = push(stack, edges, visited, idx+1)
			}
			if y > 0 {
				stack = push(stack, edges, visited, idx-width)
			}
			if y < height-1 {
				stack = push(stack, edges, visited, idx+width)
			}
		}
		out = append(out, c)
	}
	return out
}

func push(stack []int, edges, visited []bool, idx int) []int {
	if edges[idx] && !visited[idx] {
		visited[idx] = true
		stack = append(stack, idx)
	}
	return stack
}
