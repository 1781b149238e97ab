package motion

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"

	"github.com/sunmech/partlocate/internal/logger"
)

var motionLog = logger.Module("motion")

// Porter 串口的最小接口
// 抽出接口是为了让测试用脚本化端口代替真实硬件。
type Porter interface {
	io.ReadWriter
	io.Closer
}

// AxisController 通过串口驱动运动轴
// 指令为单行文本（G0/G28 风格），控制器以 "ok" 或 "err 说明" 应答。
// 同时实现 Movable 与 Head，对应单运动头的机台。
type AxisController struct {
	mu    sync.Mutex
	port  Porter
	scan  *bufio.Scanner
	loc   Location
	safeZ float64
	park  Location
}

var (
	_ Movable = (*AxisController)(nil)
	_ Head    = (*AxisController)(nil)
)

// ControllerOption 控制器选项
type ControllerOption func(*AxisController)

// WithSafeZ 设置安全高度，默认 0
func WithSafeZ(z float64) ControllerOption {
	return func(c *AxisController) {
		c.safeZ = z
	}
}

// WithParkLocation 设置停靠位，默认原点
func WithParkLocation(loc Location) ControllerOption {
	return func(c *AxisController) {
		c.park = loc
	}
}

// Open 打开串口并连接轴控制器
func Open(portName string, baudRate int, opts ...ControllerOption) (*AxisController, error) {
	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("打开串口失败: %w", err)
	}
	if err := port.SetReadTimeout(2 * time.Second); err != nil {
		port.Close()
		return nil, fmt.Errorf("设置串口超时失败: %w", err)
	}

	motionLog.Info().Str("port", portName).Int("baud", baudRate).Msg("轴控制器已连接")
	return NewAxisController(port, opts...), nil
}

// NewAxisController 用已就绪的端口构造控制器
// 上电后坐标视为原点，Home 之前的读数只反映已下发的指令。
func NewAxisController(port Porter, opts ...ControllerOption) *AxisController {
	c := &AxisController{
		port: port,
		scan: bufio.NewScanner(port),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// MoveTo 运动到目标坐标，NaN 轴保持不动
func (c *AxisController) MoveTo(loc Location, speed float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var b strings.Builder
	b.WriteString("G0")
	appendAxis(&b, "X", loc.X)
	appendAxis(&b, "Y", loc.Y)
	appendAxis(&b, "Z", loc.Z)
	appendAxis(&b, "C", loc.Rotation)
	if speed > 0 {
		fmt.Fprintf(&b, " F%.0f", speed)
	}

	if err := c.command(b.String()); err != nil {
		return err
	}
	c.loc = c.loc.Derive(loc.X, loc.Y, loc.Z, loc.Rotation)
	return nil
}

// MoveToSafeZ 抬升到安全高度，其余轴保持不动
func (c *AxisController) MoveToSafeZ(speed float64) error {
	nan := math.NaN()
	return c.MoveTo(Location{X: nan, Y: nan, Z: c.safeZ, Rotation: nan}, speed)
}

// DefaultMovable 返回默认运动部件
func (c *AxisController) DefaultMovable() Movable {
	return c
}

// ParkLocation 返回停靠位
func (c *AxisController) ParkLocation() Location {
	return c.park
}

// CurrentLocation 返回最近一次指令后的坐标
func (c *AxisController) CurrentLocation() (Location, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loc, nil
}

// CurrentRotation 返回旋转轴当前角度
// 对已随轴旋转的物料，该读数可作为定位的初始角度提示。
func (c *AxisController) CurrentRotation() (float64, error) {
	loc, err := c.CurrentLocation()
	if err != nil {
		return 0, err
	}
	return loc.Rotation, nil
}

// Home 全轴回原点
func (c *AxisController) Home() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.command("G28"); err != nil {
		return err
	}
	c.loc = Location{}
	return nil
}

// Close 关闭串口
func (c *AxisController) Close() error {
	return c.port.Close()
}

// command 发送单条指令并等待 ok/err 应答，调用方需持有锁
func (c *AxisController) command(cmd string) error {
	if _, err := fmt.Fprintf(c.port, "%s\n", cmd); err != nil {
		return fmt.Errorf("串口写入失败: %w", err)
	}

	for c.scan.Scan() {
		line := strings.TrimSpace(c.scan.Text())
		if line == "" {
			continue
		}
		motionLog.Debug().Str("cmd", cmd).Str("resp", line).Msg("轴控制器应答")

		if line == "ok" {
			return nil
		}
		if strings.HasPrefix(line, "err") {
			return fmt.Errorf("轴控制器报错: %s", strings.TrimSpace(strings.TrimPrefix(line, "err")))
		}
		// 其余行视为状态回显，继续等待应答
	}
	if err := c.scan.Err(); err != nil {
		return fmt.Errorf("串口读取失败: %w", err)
	}
	return fmt.Errorf("轴控制器无应答: %s", cmd)
}

func appendAxis(b *strings.Builder, word string, v float64) {
	if math.IsNaN(v) {
		return
	}
	fmt.Fprintf(b, " %s%.3f", word, v)
}
