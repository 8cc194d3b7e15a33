package catalog

import "github.com/nvandessel/labkit/internal/exptype"

var (
	logicProps    = map[string]float64{"高电平": 3, "低电平": 0, "最大电流": 0.1, "锁定": 1}
	twoPinStats   = map[string]float64{"瞬间功率": 0, "瞬间电流": 0, "瞬间电压": 0, "功率": 0, "电压": 0, "电流": 0}
	twoPin        = []string{"red", "black"}
	unaryGatePins = []string{"i", "o"}
	binaryGate    = []string{"i_up", "i_low", "o"}
)

func builtin() []Template {
	return []Template{
		// Circuit: logic.
		{Model: "Logic Input", Type: exptype.Circuit, Pins: []string{"o"},
			Properties: map[string]float64{"高电平": 3, "低电平": 0, "锁定": 1, "开关": 0}},
		{Model: "Logic Output", Type: exptype.Circuit, Pins: []string{"i"},
			Properties: map[string]float64{"状态": 0, "高电平": 3, "低电平": 0, "锁定": 1}},
		{Model: "Yes Gate", Type: exptype.Circuit, Pins: unaryGatePins, Properties: logicProps},
		{Model: "No Gate", Type: exptype.Circuit, Pins: unaryGatePins, Properties: logicProps},
		{Model: "And Gate", Type: exptype.Circuit, Pins: binaryGate, Properties: logicProps},
		{Model: "Or Gate", Type: exptype.Circuit, Pins: binaryGate, Properties: logicProps},
		{Model: "Half Adder", Type: exptype.Circuit, Big: true, Properties: logicProps,
			Pins: []string{"o_up", "o_low", "i_up", "i_low"}},
		{Model: "Full Adder", Type: exptype.Circuit, Big: true, Properties: logicProps,
			Pins: []string{"o_up", "o_low", "i_up", "i_mid", "i_low"}},
		{Model: "Multiplier", Type: exptype.Circuit, Big: true, Properties: logicProps,
			Pins: []string{"o_up", "o_upmid", "o_lowmid", "o_low", "i_up", "i_upmid", "i_lowmid", "i_low"}},

		// Circuit: analog.
		{Model: "Battery Source", Type: exptype.Circuit, Pins: twoPin, Statistics: twoPinStats,
			Properties: map[string]float64{"最大功率": 16.2, "电压": 3, "内阻": 0.5}},
		{Model: "Resistor", Type: exptype.Circuit, Pins: twoPin, Statistics: twoPinStats,
			Properties: map[string]float64{"最大电阻": 1e6, "最小电阻": 0.1, "电阻": 10, "锁定": 1}},
		{Model: "Simple Switch", Type: exptype.Circuit, Pins: twoPin,
			Properties: map[string]float64{"开关": 0, "锁定": 1}},
		{Model: "Electric Fan", Type: exptype.Circuit, Pins: twoPin,
			Properties: map[string]float64{"额定电阻": 1, "马达常数": 0.1, "转动惯量": 0.01, "电感": 5e-05,
				"负荷扭矩": 0.01, "反电动势系数": 0.001, "粘性摩擦系数": 0.01, "角速度": 0, "锁定": 1},
			Statistics: map[string]float64{"瞬间功率": 0, "瞬间电流": 0, "瞬间电压": 0, "功率": 0, "电压": 0, "电流": 0,
				"摩擦扭矩": 0, "角速度": 0, "反电动势": 0, "转速": 0, "输入功率": 0, "输出功率": 0}},
		{Model: "Simple Instrument", Type: exptype.Circuit, Pins: []string{"i", "o"}, Statistics: twoPinStats,
			Properties: map[string]float64{"额定电压": 3, "额定功率": 0.3, "音量": 1, "音高": 60, "节拍": 100, "锁定": 1, "乐器": 0},
			Configure:  configureInstrument},

		// Celestial.
		{Model: "Star", Type: exptype.Celestial,
			Properties: map[string]float64{"质量": 1.989e30, "半径": 6.96e8, "温度": 5778}},
		{Model: "Planet", Type: exptype.Celestial,
			Properties: map[string]float64{"质量": 5.972e24, "半径": 6.371e6}},

		// Electromagnetism.
		{Model: "Positive Charge", Type: exptype.Electromagnetism,
			Properties: map[string]float64{"电荷": 1e-7, "质量": 0.1, "锁定": 1}},
		{Model: "Negative Charge", Type: exptype.Electromagnetism,
			Properties: map[string]float64{"电荷": -1e-7, "质量": 0.1, "锁定": 1}},
		{Model: "Bar Magnet", Type: exptype.Electromagnetism,
			Properties: map[string]float64{"磁场强度": 1, "质量": 1, "锁定": 1}},
	}
}
