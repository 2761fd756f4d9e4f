package unm

// OpticalNetworkUnit is one row of LST-ONU
type OpticalNetworkUnit struct {
	OltID    string
	PonID    string
	OnuNo    string
	Name     string
	Desc     string
	OnuType  string
	IP       string
	AuthType string
	Mac      string
	LoID     string
	SwVer    string // Software version
	HwVer    string // Hardware version
}

// OpticalNetworkUnitState is one row of LST-ONUSTATE
type OpticalNetworkUnitState struct {
	PonID      string
	OnuNo      string
	AdminState string
	OperState  string
	AuthState  string
}

// OpticalNetworkUnitInfo is one row of LST-OMDDM
type OpticalNetworkUnitInfo struct {
	OnuID             string
	RxPower           string
	RxPowerStatus     string
	TxPower           string
	TxPowerStatus     string
	CurrTxBias        string
	CurrTxBiasStatus  string
	Temperature       string
	TemperatureStatus string
	Voltage           string
	VoltageStatus     string
	PTxPower          string
	PRxPower          string
}

func onuFromRow(row map[string]string) OpticalNetworkUnit {
	return OpticalNetworkUnit{
		OltID:    row["OLTID"],
		PonID:    row["PONID"],
		OnuNo:    row["ONUNO"],
		Name:     row["NAME"],
		Desc:     row["DESC"],
		OnuType:  row["ONUTYPE"],
		IP:       row["IP"],
		AuthType: row["AUTHTYPE"],
		Mac:      row["MAC"],
		LoID:     row["LOID"],
		SwVer:    row["SWVER"],
		HwVer:    row["HWVER"],
	}
}

func stateFromRow(row map[string]string) OpticalNetworkUnitState {
	return OpticalNetworkUnitState{
		PonID:      row["PONID"],
		OnuNo:      row["ONUNO"],
		AdminState: row["ADMINSTATE"],
		OperState:  row["OPERSTATE"],
		AuthState:  row["AUTHSTATE"],
	}
}

func infoFromRow(row map[string]string) OpticalNetworkUnitInfo {
	return OpticalNetworkUnitInfo{
		OnuID:             row["ONUID"],
		RxPower:           row["RxPower"],
		RxPowerStatus:     row["RxPowerStatus"],
		TxPower:           row["TxPower"],
		TxPowerStatus:     row["TxPowerStatus"],
		CurrTxBias:        row["CurrTxBias"],
		CurrTxBiasStatus:  row["CurrTxBiasStatus"],
		Temperature:       row["Temperature"],
		TemperatureStatus: row["TemperatureStatus"],
		Voltage:           row["Voltage"],
		VoltageStatus:     row["VoltageStatus"],
		PTxPower:          row["PTxPower"],
		PRxPower:          row["PRxPower"],
	}
}
