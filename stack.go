package goxq

type stack[T any] struct {
	data []T
}

func (s *stack[T]) push(v T) {
	s.data = append(s.data, v)
}

func (s *stack[T]) pop() T {
	var zero T
	v := s.data[len(s.data)-1]
	s.data[len(s.data)-1] = zero
	s.data = s.data[:len(s.data)-1]
	return v
}

func (s *stack[T]) top() T {
	return s.data[len(s.data)-1]
}

func (s *stack[T]) empty() bool {
	return len(s.data) == 0
}

func (s *stack[T]) len() int {
	return len(s.data)
}
