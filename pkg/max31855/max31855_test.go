package max31855

import (
	"testing"

	"github.com/kirsrus/termopad/agent/model"
)

func TestSignExtend14RoundTrip(t *testing.T) {
	for h := 0; h <= 0xFFFF; h++ {
		high := uint16(h)
		got := Unextend14(SignExtend14(high))
		if got != high&0xFFFC {
			t.Fatalf("high=%#04x: обратное преобразование дало %#04x", high, got)
		}
	}
}

func TestSignExtend14(t *testing.T) {
	tests := []struct {
		name string
		high uint16
		want int16
	}{
		{name: "ноль", high: 0x0000, want: 0},
		{name: "служебные биты отбрасываются", high: 0x0003, want: 0},
		{name: "максимум", high: 0x7FFC, want: 0x1FFF},
		{name: "минимум", high: 0x8000, want: -0x2000},
		{name: "минус четверть", high: 0xFFFC, want: -1},
		{name: "1600 градусов", high: 0x6400, want: 6400},
		{name: "-250 градусов", high: 0xF060, want: -1000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SignExtend14(tt.high); got != tt.want {
				t.Errorf("SignExtend14(%#04x) = %d, want %d", tt.high, got, tt.want)
			}
		})
	}
}

func TestDecodeTemperature(t *testing.T) {
	tests := []struct {
		name           string
		high           uint16
		wantInteger    int16
		wantHundredths int16
	}{
		{name: "ноль", high: 0x0000, wantInteger: 0, wantHundredths: 0},
		{name: "25 градусов", high: 0x0190, wantInteger: 25, wantHundredths: 0},
		{name: "23.75 градусов", high: 0x017C, wantInteger: 23, wantHundredths: 75},
		{name: "200 градусов", high: 0x0C80, wantInteger: 200, wantHundredths: 0},
		{name: "-10.25 градусов", high: Unextend14(-41), wantInteger: -10, wantHundredths: 25},
		{name: "-0.25 градусов", high: 0xFFFC, wantInteger: 0, wantHundredths: 25},
		{name: "-1 градус", high: 0xFFF0, wantInteger: -1, wantHundredths: 0},
		{name: "-250 градусов", high: 0xF060, wantInteger: -250, wantHundredths: 0},
		{name: "флаг неисправности не влияет", high: 0x0191, wantInteger: 25, wantHundredths: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			integer, hundredths := DecodeTemperature(tt.high)
			if integer != tt.wantInteger || hundredths != tt.wantHundredths {
				t.Errorf("DecodeTemperature(%#04x) = (%d, %d), want (%d, %d)",
					tt.high, integer, hundredths, tt.wantInteger, tt.wantHundredths)
			}
		})
	}
}

func TestDecodeTemperatureNegativeIsNotPlaceholder(t *testing.T) {
	seen := map[int16]bool{}
	for q := int16(-1000); q < 0; q++ {
		integer, hundredths := DecodeTemperature(Unextend14(q))
		if got := integer*100 - hundredths; got != q*25 {
			t.Fatalf("quarters=%d: получено %d.%02d", q, integer, hundredths)
		}
		seen[integer] = true
	}
	if len(seen) < 200 {
		t.Errorf("отрицательные температуры свёрнуты в %d значений", len(seen))
	}
}

func TestDecodeFaults(t *testing.T) {
	tests := []struct {
		name string
		high uint16
		low  uint16
		want Faults
	}{
		{name: "нет неисправностей", high: 0x0C80, low: 0x0140, want: Faults{}},
		{name: "общий флаг", high: 0x0001, low: 0x0000, want: Faults{Fault: true}},
		{name: "обрыв", high: 0x0001, low: 0x0001, want: Faults{Fault: true, OpenCircuit: true}},
		{name: "замыкание на GND", high: 0x0001, low: 0x0002, want: Faults{Fault: true, ShortGND: true}},
		{name: "замыкание на VCC", high: 0x0001, low: 0x0004, want: Faults{Fault: true, ShortVCC: true}},
		{name: "флаги независимы", high: 0x0000, low: 0x0007, want: Faults{OpenCircuit: true, ShortGND: true, ShortVCC: true}},
		{name: "бит D3 не флаг", high: 0x0000, low: 0x0008, want: Faults{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DecodeFaults(tt.high, tt.low); got != tt.want {
				t.Errorf("DecodeFaults(%#04x, %#04x) = %+v, want %+v", tt.high, tt.low, got, tt.want)
			}
		})
	}
}

func TestDecodeReference(t *testing.T) {
	tests := []struct {
		name           string
		low            uint16
		wantDegrees    int16
		wantSixteenths int16
	}{
		{name: "ноль", low: 0x0000, wantDegrees: 0, wantSixteenths: 0},
		{name: "1.25 градуса", low: 0x0140, wantDegrees: 1, wantSixteenths: 20},
		{name: "25 градусов", low: 0x1900, wantDegrees: 25, wantSixteenths: 400},
		{name: "-1 градус", low: 0xFF00, wantDegrees: -1, wantSixteenths: -16},
		{name: "-0.0625 градуса", low: 0xFFF0, wantDegrees: -1, wantSixteenths: -1},
		{name: "флаги отбрасываются", low: 0x1907, wantDegrees: 25, wantSixteenths: 400},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DecodeReference(tt.low); got != tt.wantDegrees {
				t.Errorf("DecodeReference(%#04x) = %d, want %d", tt.low, got, tt.wantDegrees)
			}
			if got := DecodeReferenceSixteenths(tt.low); got != tt.wantSixteenths {
				t.Errorf("DecodeReferenceSixteenths(%#04x) = %d, want %d", tt.low, got, tt.wantSixteenths)
			}
		})
	}
}

func TestDecode(t *testing.T) {
	raw := model.RawSample{High: 0x0C80, Low: 0x0140}
	first := Decode(raw)
	second := Decode(raw)
	if first != second {
		t.Fatalf("повторное декодирование отличается: %+v != %+v", first, second)
	}
	if first.Integer != 200 || first.Hundredths != 0 || first.Reference != 1 {
		t.Errorf("неожиданный результат: %+v", first)
	}
	if first.HasFault() {
		t.Errorf("флаги неисправности не ожидались: %+v", first)
	}

	zero := Decode(model.RawSample{})
	if zero.Integer != 0 || zero.Hundredths != 0 || zero.Fault {
		t.Errorf("нулевой отсчёт декодирован как %+v", zero)
	}
}

func TestEncode(t *testing.T) {
	faults := Faults{Fault: true, ShortGND: true}
	raw := Encode(-41, faults, -16)
	got := Decode(raw)
	if got.Quarters != -41 || got.ReferenceSixteenths != -16 || got.Reference != -1 {
		t.Errorf("Decode(Encode()) = %+v", got)
	}
	if DecodeFaults(raw.High, raw.Low) != faults {
		t.Errorf("флаги не сохранились: %+v", DecodeFaults(raw.High, raw.Low))
	}
}
