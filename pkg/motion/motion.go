package motion

import "math"

// Movable 可运动部件
type Movable interface {
	// MoveTo 运动到目标坐标，NaN 轴保持不动
	// speed 为进给速度，<= 0 时使用控制器默认值。
	MoveTo(loc Location, speed float64) error
	// CurrentLocation 返回当前坐标
	CurrentLocation() (Location, error)
}

// Head 运动头
type Head interface {
	// MoveToSafeZ 将所有部件抬升到安全高度
	MoveToSafeZ(speed float64) error
	// DefaultMovable 返回默认运动部件
	DefaultMovable() Movable
	// ParkLocation 返回停靠位
	ParkLocation() Location
}

// MoveToAtSafeZ 以安全高度运动到目标坐标
// 先抬升到安全高度，再执行 X/Y/旋转（Z 轴保持），最后下降到目标高度。
// 该顺序保证平移过程中部件不会撞到工作面上的物体。
func MoveToAtSafeZ(m Movable, head Head, loc Location, speed float64) error {
	if err := head.MoveToSafeZ(speed); err != nil {
		return err
	}
	partial := loc
	partial.Z = math.NaN()
	if err := m.MoveTo(partial, speed); err != nil {
		return err
	}
	return m.MoveTo(loc, speed)
}

// Park 收拢运动头到停靠位
// 先抬升到安全高度，再平移到停靠位，Z 与旋转轴保持不动。
func Park(head Head, speed float64) error {
	if err := head.MoveToSafeZ(speed); err != nil {
		return err
	}
	target := head.ParkLocation()
	target.Z = math.NaN()
	target.Rotation = math.NaN()
	return head.DefaultMovable().MoveTo(target, speed)
}
